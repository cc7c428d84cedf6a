package grpc

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"chatmakere/internal/auth"
)

// AuthClient validates tokens against a remote auth service. The request is
// the raw token as a StringValue and the reply is a Struct with the fields
// valid, user_id, email and username.
type AuthClient struct {
	conn   grpc.ClientConnInterface
	method string
}

// NewAuthClient constructs the wrapper.
func NewAuthClient(conn grpc.ClientConnInterface, method string) *AuthClient {
	return &AuthClient{conn: conn, method: method}
}

// Dial opens a traced plaintext client connection to the auth service.
func Dial(addr string, opts ...grpc.DialOption) (*grpc.ClientConn, error) {
	opts = append([]grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithStatsHandler(otelgrpc.NewClientHandler()),
	}, opts...)
	return grpc.NewClient(addr, opts...)
}

// ValidateToken verifies the token and returns the authenticated identity.
func (a *AuthClient) ValidateToken(ctx context.Context, token string) (auth.Identity, error) {
	resp := &structpb.Struct{}
	if err := a.conn.Invoke(ctx, a.method, wrapperspb.String(token), resp); err != nil {
		return auth.Identity{}, fmt.Errorf("%w: %v", auth.ErrInvalidToken, err)
	}

	fields := resp.GetFields()
	if !fields["valid"].GetBoolValue() {
		return auth.Identity{}, auth.ErrInvalidToken
	}
	userID, err := uuid.Parse(fields["user_id"].GetStringValue())
	if err != nil {
		return auth.Identity{}, errors.Join(auth.ErrInvalidToken, err)
	}
	return auth.Identity{
		UserID:   userID,
		Email:    fields["email"].GetStringValue(),
		Username: fields["username"].GetStringValue(),
	}, nil
}
