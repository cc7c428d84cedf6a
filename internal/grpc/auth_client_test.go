package grpc

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"chatmakere/internal/auth"
)

type fakeConn struct {
	method string
	token  string
	reply  map[string]any
	err    error
}

func (f *fakeConn) Invoke(_ context.Context, method string, args any, reply any, _ ...grpc.CallOption) error {
	f.method = method
	f.token = args.(*wrapperspb.StringValue).GetValue()
	if f.err != nil {
		return f.err
	}
	s, err := structpb.NewStruct(f.reply)
	if err != nil {
		return err
	}
	reply.(*structpb.Struct).Fields = s.Fields
	return nil
}

func (f *fakeConn) NewStream(context.Context, *grpc.StreamDesc, string, ...grpc.CallOption) (grpc.ClientStream, error) {
	return nil, errors.New("not supported")
}

func TestAuthClientValidToken(t *testing.T) {
	userID := uuid.New()
	conn := &fakeConn{reply: map[string]any{
		"valid":    true,
		"user_id":  userID.String(),
		"email":    "bob@example.com",
		"username": "bob",
	}}
	client := NewAuthClient(conn, "/auth.AuthService/ValidateToken")

	identity, err := client.ValidateToken(context.Background(), "tok")
	require.NoError(t, err)
	assert.Equal(t, "/auth.AuthService/ValidateToken", conn.method)
	assert.Equal(t, "tok", conn.token)
	assert.Equal(t, userID, identity.UserID)
	assert.Equal(t, "bob", identity.DisplayName())
}

func TestAuthClientRejects(t *testing.T) {
	cases := map[string]*fakeConn{
		"invalid":      {reply: map[string]any{"valid": false}},
		"bad user id":  {reply: map[string]any{"valid": true, "user_id": "7"}},
		"rpc failure":  {err: status.Error(codes.Unavailable, "down")},
		"empty result": {reply: map[string]any{}},
	}
	for name, conn := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := NewAuthClient(conn, "/m").ValidateToken(context.Background(), "tok")
			assert.ErrorIs(t, err, auth.ErrInvalidToken)
		})
	}
}
