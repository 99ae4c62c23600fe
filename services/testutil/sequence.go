package testutil

import (
	"context"
	"fmt"
	"sync/atomic"
)

// Sequence is an in-process stand-in for the redis code generator.
type Sequence struct {
	n   atomic.Int64
	Err error
}

func (s *Sequence) next(prefix string) (string, error) {
	if s.Err != nil {
		return "", s.Err
	}
	return fmt.Sprintf("%s-TEST-%04d", prefix, s.n.Add(1)), nil
}

func (s *Sequence) NextCampaignCode(ctx context.Context) (string, error) {
	return s.next("CMP")
}

func (s *Sequence) NextPledgeOrderID(ctx context.Context) (string, error) {
	return s.next("PLG")
}

func (s *Sequence) NextPayoutCode(ctx context.Context) (string, error) {
	return s.next("PAY")
}
