package errutil

import (
	"context"
	"errors"

	"google.golang.org/genproto/googleapis/rpc/errdetails"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// ErrorDomain is reported in google.rpc.ErrorInfo details.
const ErrorDomain = "bringitback.app"

// GRPCCode converts the CoreStatus to its closest gRPC status code equivalent.
// State conflicts surface as FailedPrecondition: the caller must re-read state
// before retrying.
func (s CoreStatus) GRPCCode() codes.Code {
	switch s {
	case StatusUnauthorized:
		return codes.Unauthenticated
	case StatusForbidden:
		return codes.PermissionDenied
	case StatusNotFound:
		return codes.NotFound
	case StatusTimeout, StatusGatewayTimeout:
		return codes.DeadlineExceeded
	case StatusConflict, StatusUnprocessableEntity:
		return codes.FailedPrecondition
	case StatusUnsupportedMediaType, StatusBadRequest, StatusValidationFailed:
		return codes.InvalidArgument
	case StatusTooManyRequests:
		return codes.ResourceExhausted
	case StatusClientClosedRequest:
		return codes.Canceled
	case StatusNotImplemented:
		return codes.Unimplemented
	case StatusBadGateway, StatusServiceUnavailable:
		return codes.Unavailable
	case StatusInternal:
		return codes.Internal
	default:
		return codes.Unknown
	}
}

// ToGRPCError converts err into a gRPC status. BaseErrors keep their reason and
// field details as ErrorInfo and BadRequest details.
func ToGRPCError(err error) error {
	if err == nil {
		return nil
	}

	if _, ok := status.FromError(err); ok {
		return err
	}

	switch {
	case errors.Is(err, context.Canceled):
		return status.Error(codes.Canceled, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		return status.Error(codes.DeadlineExceeded, err.Error())
	}

	var base BaseError
	if !errors.As(err, &base) {
		return status.Error(codes.Internal, err.Error())
	}

	st := status.New(base.Code.GRPCCode(), base.Message)
	info := &errdetails.ErrorInfo{
		Reason: base.Reason,
		Domain: ErrorDomain,
		Metadata: map[string]string{
			"code": string(base.Code),
		},
	}
	if base.Retryable() {
		info.Metadata["retryable"] = "true"
	}

	withDetails, derr := st.WithDetails(info)
	if derr != nil {
		return st.Err()
	}
	if len(base.Details) > 0 {
		br := &errdetails.BadRequest{}
		for _, d := range base.Details {
			br.FieldViolations = append(br.FieldViolations, &errdetails.BadRequest_FieldViolation{
				Field:       d.Field,
				Description: d.Message,
			})
		}
		if next, err := withDetails.WithDetails(br); err == nil {
			withDetails = next
		}
	}
	return withDetails.Err()
}

// UnaryServerInterceptor renders handler errors with ToGRPCError.
func UnaryServerInterceptor() grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		resp, err := handler(ctx, req)
		return resp, ToGRPCError(err)
	}
}
