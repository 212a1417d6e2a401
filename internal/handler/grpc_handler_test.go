package handler

import (
	"context"
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/pesio-ai/be-qc-inspections/internal/platform/errors"
	"github.com/pesio-ai/be-qc-inspections/internal/platform/logger"
)

func startGRPC(t *testing.T) *grpc.ClientConn {
	t.Helper()
	lis := bufconn.Listen(1 << 20)
	srv := grpc.NewServer(grpc.ChainUnaryInterceptor(
		UnaryRecovery(logger.Nop()),
		UnaryLogging(logger.Nop()),
	))
	NewGRPCHandler(newTestService(t), logger.Nop()).Register(srv)
	go func() { _ = srv.Serve(lis) }()
	t.Cleanup(srv.Stop)

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func invoke(ctx context.Context, conn *grpc.ClientConn, method string, in map[string]any) (*structpb.Struct, error) {
	req, err := structpb.NewStruct(in)
	if err != nil {
		return nil, err
	}
	out := new(structpb.Struct)
	err = conn.Invoke(ctx, "/"+ServiceName+"/"+method, req, out)
	return out, err
}

func TestGRPCCreateSubmitAndAudit(t *testing.T) {
	conn := startGRPC(t)
	ctx := metadata.AppendToOutgoingContext(context.Background(), actorMetadataKey, "inspector-9")

	created, err := invoke(ctx, conn, "CreateInspection", map[string]any{
		"subject_id":      "member-1",
		"order_number":    "ORD-7",
		"template_set_id": "jacket",
	})
	require.NoError(t, err)
	id := created.Fields["id"].GetStringValue()
	require.NotEmpty(t, id)
	assert.Equal(t, "pending", created.Fields["overall_status"].GetStringValue())

	submitted, err := invoke(ctx, conn, "SubmitCriterion", map[string]any{
		"inspection_id": id,
		"checkpoint_id": "measurement",
		"criterion_id":  "chest",
		"passed":        true,
	})
	require.NoError(t, err)
	assert.Equal(t, float64(1), submitted.Fields["current_stage_index"].GetNumberValue())
	assert.Equal(t, float64(2), submitted.Fields["version"].GetNumberValue())

	trail, err := invoke(ctx, conn, "GetAuditTrail", map[string]any{"id": id})
	require.NoError(t, err)
	events := trail.Fields["events"].GetListValue().GetValues()
	require.Len(t, events, 2)
	last := events[1].GetStructValue().Fields
	assert.Equal(t, "criterion_submitted", last["type"].GetStringValue())
	assert.Equal(t, "inspector-9", last["actor_id"].GetStringValue())

	list, err := invoke(ctx, conn, "ListInspections", map[string]any{})
	require.NoError(t, err)
	assert.Equal(t, float64(1), list.Fields["total"].GetNumberValue())
}

func TestGRPCErrorCodes(t *testing.T) {
	conn := startGRPC(t)
	ctx := metadata.AppendToOutgoingContext(context.Background(), actorMetadataKey, "inspector-9")

	_, err := invoke(ctx, conn, "GetInspection", map[string]any{"id": "missing"})
	assert.Equal(t, codes.NotFound, status.Code(err))

	created, err := invoke(ctx, conn, "CreateInspection", map[string]any{
		"subject_id":      "member-1",
		"order_number":    "ORD-7",
		"template_set_id": "jacket",
	})
	require.NoError(t, err)
	id := created.Fields["id"].GetStringValue()

	_, err = invoke(ctx, conn, "SubmitCriterion", map[string]any{
		"inspection_id": id,
		"checkpoint_id": "sewing",
		"criterion_id":  "seams",
		"passed":        true,
	})
	assert.Equal(t, codes.FailedPrecondition, status.Code(err))

	_, err = invoke(ctx, conn, "SubmitCriterion", map[string]any{
		"inspection_id":    id,
		"checkpoint_id":    "measurement",
		"criterion_id":     "chest",
		"passed":           true,
		"expected_version": 5,
	})
	assert.Equal(t, codes.Aborted, status.Code(err))

	_, err = invoke(context.Background(), conn, "CancelInspection", map[string]any{"inspection_id": id})
	assert.Equal(t, codes.InvalidArgument, status.Code(err), "actor is required")
}

func TestMapErrorToGRPC(t *testing.T) {
	assert.NoError(t, mapErrorToGRPC(nil))
	assert.Equal(t, codes.NotFound, status.Code(mapErrorToGRPC(errors.New(errors.ErrCodeTemplateNotFound, "x"))))
	assert.Equal(t, codes.InvalidArgument, status.Code(mapErrorToGRPC(errors.InvalidInput("f", "bad"))))
	assert.Equal(t, codes.FailedPrecondition, status.Code(mapErrorToGRPC(errors.New(errors.ErrCodeAlreadyFinalized, "x"))))
	assert.Equal(t, codes.Internal, status.Code(mapErrorToGRPC(context.DeadlineExceeded)))
}
