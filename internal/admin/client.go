package admin

import (
	"context"
	"fmt"
	"sort"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
)

// Status is a decoded Status response.
type Status struct {
	Node          string
	UptimeMs      int64
	Connections   int
	Away          int
	Rooms         int
	Users         int64
	Conversations int64
	Messages      int64
	Notifications int64
	BusDropped    int64
	Outbox        map[string]int64
}

// OnlineUser is one entry of ListOnline.
type OnlineUser struct {
	UserID   string
	Presence string
}

// Client wraps the gRPC connection to the daemon's admin socket.
type Client struct {
	conn   *grpc.ClientConn
	health healthpb.HealthClient
}

// Dial connects to the unix socket at socketPath. The connection is lazy;
// the first call surfaces an unreachable daemon.
func Dial(socketPath string) (*Client, error) {
	conn, err := grpc.NewClient(
		"unix://"+socketPath,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	if err != nil {
		return nil, fmt.Errorf("dial daemon: %w", err)
	}
	return &Client{conn: conn, health: healthpb.NewHealthClient(conn)}, nil
}

// Close closes the gRPC connection.
func (c *Client) Close() error {
	return c.conn.Close()
}

// Healthy reports whether the admin service is SERVING.
func (c *Client) Healthy(ctx context.Context) (bool, error) {
	resp, err := c.health.Check(ctx, &healthpb.HealthCheckRequest{Service: ServiceName})
	if err != nil {
		return false, err
	}
	return resp.GetStatus() == healthpb.HealthCheckResponse_SERVING, nil
}

func (c *Client) Status(ctx context.Context) (*Status, error) {
	out := new(structpb.Struct)
	if err := c.conn.Invoke(ctx, methodStatus, &emptypb.Empty{}, out); err != nil {
		return nil, err
	}
	f := out.GetFields()
	st := &Status{
		Node:          f["node"].GetStringValue(),
		UptimeMs:      int64(f["uptimeMs"].GetNumberValue()),
		Connections:   int(f["connections"].GetNumberValue()),
		Away:          int(f["away"].GetNumberValue()),
		Rooms:         int(f["rooms"].GetNumberValue()),
		Users:         int64(f["users"].GetNumberValue()),
		Conversations: int64(f["conversations"].GetNumberValue()),
		Messages:      int64(f["messages"].GetNumberValue()),
		Notifications: int64(f["notifications"].GetNumberValue()),
		BusDropped:    int64(f["busDropped"].GetNumberValue()),
		Outbox:        map[string]int64{},
	}
	for k, v := range f["outbox"].GetStructValue().GetFields() {
		st.Outbox[k] = int64(v.GetNumberValue())
	}
	return st, nil
}

func (c *Client) ListOnline(ctx context.Context) ([]OnlineUser, error) {
	out := new(structpb.Struct)
	if err := c.conn.Invoke(ctx, methodListOnline, &emptypb.Empty{}, out); err != nil {
		return nil, err
	}
	var users []OnlineUser
	for _, v := range out.GetFields()["users"].GetListValue().GetValues() {
		f := v.GetStructValue().GetFields()
		users = append(users, OnlineUser{
			UserID:   f["userId"].GetStringValue(),
			Presence: f["presence"].GetStringValue(),
		})
	}
	sort.Slice(users, func(i, j int) bool { return users[i].UserID < users[j].UserID })
	return users, nil
}

// Kick force-disconnects userID. It returns false when the user was not
// connected.
func (c *Client) Kick(ctx context.Context, userID, reason string) (bool, error) {
	in := &structpb.Struct{Fields: map[string]*structpb.Value{
		"userId": structpb.NewStringValue(userID),
		"reason": structpb.NewStringValue(reason),
	}}
	out := new(structpb.Struct)
	if err := c.conn.Invoke(ctx, methodKick, in, out); err != nil {
		return false, err
	}
	return out.GetFields()["kicked"].GetBoolValue(), nil
}
