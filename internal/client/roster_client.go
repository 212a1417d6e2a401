package client

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/pesio-ai/be-qc-inspections/internal/inspection"
	"github.com/pesio-ai/be-qc-inspections/internal/platform/errors"
)

// ListRosterMethod is the full method name of the roster lookup on the
// orders service.
const ListRosterMethod = "/orders.v1.RosterService/ListRoster"

// RosterGRPCClient is a gRPC client for the orders service roster.
type RosterGRPCClient struct {
	conn    grpc.ClientConnInterface
	closer  func() error
	timeout time.Duration
}

// NewRosterGRPCClient creates a new roster gRPC client
func NewRosterGRPCClient(addr string, timeout time.Duration) (*RosterGRPCClient, error) {
	conn, err := grpc.NewClient(addr,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithUnaryInterceptor(forwardMetadata),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create gRPC connection: %w", err)
	}
	return &RosterGRPCClient{conn: conn, closer: conn.Close, timeout: timeout}, nil
}

// NewRosterClientFromConn wraps an existing connection. The caller owns it.
func NewRosterClientFromConn(conn grpc.ClientConnInterface, timeout time.Duration) *RosterGRPCClient {
	return &RosterGRPCClient{conn: conn, timeout: timeout}
}

// Close closes the gRPC connection
func (c *RosterGRPCClient) Close() error {
	if c.closer != nil {
		return c.closer()
	}
	return nil
}

type rosterEntry struct {
	SubjectID    string              `json:"subject_id"`
	OrderNumber  string              `json:"order_number"`
	Role         string              `json:"role"`
	PriorityHint inspection.Priority `json:"priority_hint"`
}

// ListRoster returns the members of an order that need inspection.
func (c *RosterGRPCClient) ListRoster(ctx context.Context, orderNumber string) ([]inspection.RosterEntry, error) {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	req, err := structpb.NewStruct(map[string]any{"order_number": orderNumber})
	if err != nil {
		return nil, fmt.Errorf("failed to build roster request: %w", err)
	}
	resp := new(structpb.Struct)
	if err := c.conn.Invoke(ctx, ListRosterMethod, req, resp); err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, errors.NotFound("order", orderNumber)
		}
		return nil, fmt.Errorf("failed to list roster: %w", err)
	}

	raw, err := resp.MarshalJSON()
	if err != nil {
		return nil, fmt.Errorf("failed to decode roster: %w", err)
	}
	var body struct {
		Entries []rosterEntry `json:"entries"`
	}
	if err := json.Unmarshal(raw, &body); err != nil {
		return nil, fmt.Errorf("failed to decode roster: %w", err)
	}

	entries := make([]inspection.RosterEntry, 0, len(body.Entries))
	for _, e := range body.Entries {
		if e.SubjectID == "" {
			continue
		}
		if e.OrderNumber == "" {
			e.OrderNumber = orderNumber
		}
		entries = append(entries, inspection.RosterEntry{
			SubjectID:    e.SubjectID,
			OrderNumber:  e.OrderNumber,
			Role:         e.Role,
			PriorityHint: e.PriorityHint,
		})
	}
	return entries, nil
}
