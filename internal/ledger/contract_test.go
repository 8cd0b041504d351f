package ledger

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/stretchr/testify/suite"

	"openbadges/pkg/domain"
	"openbadges/pkg/platform/sentinel"
)

// ContractSuite runs the same behaviour checks against every adapter.
type ContractSuite struct {
	suite.Suite
	newLedger func() Ledger
	ledger    Ledger
	ctx       context.Context
	base      time.Time
}

func (s *ContractSuite) SetupTest() {
	s.ctx = context.Background()
	s.ledger = s.newLedger()
	s.base = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
}

func testAddress(label string) domain.Address {
	return domain.Address(sha256.Sum256([]byte(label)))
}

func (s *ContractSuite) credential(label string, issuer, achievement, recipient domain.Address, offset time.Duration) Account {
	created := s.base.Add(offset)
	data, _ := json.Marshal(map[string]string{"label": label})
	return Account{
		Address:     testAddress(label),
		Kind:        KindCredential,
		Nonce:       254,
		Issuer:      issuer,
		Achievement: achievement,
		Recipient:   recipient,
		Data:        data,
		CreatedAt:   created,
		UpdatedAt:   created,
	}
}

func (s *ContractSuite) TestCreateAndRead() {
	issuer := testAddress("issuer")
	acct := s.credential("c1", issuer, testAddress("a1"), testAddress("r1"), 0)

	s.Run("reads back what was created", func() {
		s.Require().NoError(s.ledger.CreateIfAbsent(s.ctx, acct))

		got, err := s.ledger.Read(s.ctx, acct.Address)
		s.Require().NoError(err)
		s.Equal(acct.Address, got.Address)
		s.Equal(KindCredential, got.Kind)
		s.Equal(byte(254), got.Nonce)
		s.Equal(issuer, got.Issuer)
		s.Equal(acct.Recipient, got.Recipient)
		s.JSONEq(string(acct.Data), string(got.Data))
		s.True(acct.CreatedAt.Equal(got.CreatedAt))
	})

	s.Run("second create at same address fails", func() {
		err := s.ledger.CreateIfAbsent(s.ctx, acct)
		s.ErrorIs(err, sentinel.ErrAlreadyExists)
	})

	s.Run("unknown address is not found", func() {
		_, err := s.ledger.Read(s.ctx, testAddress("missing"))
		s.ErrorIs(err, sentinel.ErrNotFound)
	})
}

func (s *ContractSuite) TestReplace() {
	acct := Account{
		Address:   testAddress("profile"),
		Kind:      KindIssuer,
		Nonce:     255,
		Data:      json.RawMessage(`{"name":"Old"}`),
		CreatedAt: s.base,
		UpdatedAt: s.base,
	}
	s.Require().NoError(s.ledger.CreateIfAbsent(s.ctx, acct))

	s.Run("overwrites data and updated_at only", func() {
		updated := acct
		updated.Data = json.RawMessage(`{"name":"New"}`)
		updated.UpdatedAt = s.base.Add(time.Hour)
		updated.Nonce = 1
		s.Require().NoError(s.ledger.Replace(s.ctx, updated))

		got, err := s.ledger.Read(s.ctx, acct.Address)
		s.Require().NoError(err)
		s.JSONEq(`{"name":"New"}`, string(got.Data))
		s.True(updated.UpdatedAt.Equal(got.UpdatedAt))
		s.True(acct.CreatedAt.Equal(got.CreatedAt))
		s.Equal(byte(255), got.Nonce)
	})

	s.Run("missing account is not found", func() {
		err := s.ledger.Replace(s.ctx, Account{Address: testAddress("nope"), Kind: KindIssuer, Data: json.RawMessage(`{}`)})
		s.ErrorIs(err, sentinel.ErrNotFound)
	})
}

func (s *ContractSuite) TestCompareAndReplace() {
	acct := Account{
		Address:   testAddress("status-list"),
		Kind:      KindRevocationList,
		Nonce:     253,
		Data:      json.RawMessage(`{"n":0}`),
		CreatedAt: s.base,
		UpdatedAt: s.base,
	}
	s.Require().NoError(s.ledger.CreateIfAbsent(s.ctx, acct))

	s.Run("stale expectation is a conflict", func() {
		next := acct
		next.Data = json.RawMessage(`{"n":1}`)
		err := s.ledger.CompareAndReplace(s.ctx, next, json.RawMessage(`{"n":7}`))
		s.ErrorIs(err, sentinel.ErrConflict)

		got, err := s.ledger.Read(s.ctx, acct.Address)
		s.Require().NoError(err)
		s.JSONEq(`{"n":0}`, string(got.Data))
	})

	s.Run("missing account is not found", func() {
		err := s.ledger.CompareAndReplace(s.ctx, Account{Address: testAddress("nope"), Data: json.RawMessage(`{}`)}, json.RawMessage(`{}`))
		s.ErrorIs(err, sentinel.ErrNotFound)
	})

	s.Run("concurrent increments are never lost", func() {
		const workers = 8
		var wg sync.WaitGroup
		for range workers {
			wg.Add(1)
			go func() {
				defer wg.Done()
				for {
					cur, err := s.ledger.Read(s.ctx, acct.Address)
					if err != nil {
						return
					}
					var v struct{ N int }
					_ = json.Unmarshal(cur.Data, &v)
					next := cur
					next.Data = json.RawMessage(fmt.Sprintf(`{"n":%d}`, v.N+1))
					err = s.ledger.CompareAndReplace(s.ctx, next, cur.Data)
					if !errors.Is(err, sentinel.ErrConflict) {
						return
					}
				}
			}()
		}
		wg.Wait()

		got, err := s.ledger.Read(s.ctx, acct.Address)
		s.Require().NoError(err)
		s.JSONEq(fmt.Sprintf(`{"n":%d}`, workers), string(got.Data))
	})
}

func (s *ContractSuite) TestList() {
	issuerA, issuerB := testAddress("issuer-a"), testAddress("issuer-b")
	ach1, ach2 := testAddress("ach-1"), testAddress("ach-2")
	alice, bob := testAddress("alice"), testAddress("bob")

	seed := []Account{
		s.credential("l1", issuerA, ach1, alice, 1*time.Minute),
		s.credential("l2", issuerA, ach1, bob, 2*time.Minute),
		s.credential("l3", issuerA, ach2, alice, 3*time.Minute),
		s.credential("l4", issuerB, ach2, bob, 4*time.Minute),
		s.credential("l5", issuerA, ach2, bob, 5*time.Minute),
	}
	for _, acct := range seed {
		s.Require().NoError(s.ledger.CreateIfAbsent(s.ctx, acct))
	}
	s.Require().NoError(s.ledger.CreateIfAbsent(s.ctx, Account{
		Address: issuerA, Kind: KindIssuer, Nonce: 255,
		Data: json.RawMessage(`{}`), CreatedAt: s.base, UpdatedAt: s.base,
	}))

	labels := func(accts []Account) []domain.Address {
		out := make([]domain.Address, 0, len(accts))
		for _, a := range accts {
			out = append(out, a.Address)
		}
		return out
	}

	s.Run("filters by kind and issuer in creation order", func() {
		got, total, err := s.ledger.List(s.ctx, Filter{Kind: KindCredential, Issuer: issuerA})
		s.Require().NoError(err)
		s.Equal(4, total)
		s.Equal([]domain.Address{seed[0].Address, seed[1].Address, seed[2].Address, seed[4].Address}, labels(got))
	})

	s.Run("combines achievement and recipient", func() {
		got, total, err := s.ledger.List(s.ctx, Filter{Kind: KindCredential, Achievement: ach2, Recipient: bob})
		s.Require().NoError(err)
		s.Equal(2, total)
		s.Equal([]domain.Address{seed[3].Address, seed[4].Address}, labels(got))
	})

	s.Run("since is inclusive", func() {
		got, total, err := s.ledger.List(s.ctx, Filter{Kind: KindCredential, Since: s.base.Add(3 * time.Minute)})
		s.Require().NoError(err)
		s.Equal(3, total)
		s.Equal(seed[2].Address, got[0].Address)
	})

	s.Run("pages with offset and limit but reports full total", func() {
		got, total, err := s.ledger.List(s.ctx, Filter{Kind: KindCredential, Offset: 1, Limit: 2})
		s.Require().NoError(err)
		s.Equal(5, total)
		s.Equal([]domain.Address{seed[1].Address, seed[2].Address}, labels(got))
	})

	s.Run("offset past the end is an empty page", func() {
		got, total, err := s.ledger.List(s.ctx, Filter{Kind: KindCredential, Offset: 10, Limit: 5})
		s.Require().NoError(err)
		s.Equal(5, total)
		s.Empty(got)
	})
}

func (s *ContractSuite) TestConcurrentCreateHasOneWinner() {
	acct := s.credential("race", testAddress("i"), testAddress("a"), testAddress("r"), 0)
	const goroutines = 20

	var wg sync.WaitGroup
	var created, conflicts atomic.Int32
	errs := make(chan error, goroutines)
	for range goroutines {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := s.ledger.CreateIfAbsent(s.ctx, acct)
			switch {
			case err == nil:
				created.Add(1)
			case errors.Is(err, sentinel.ErrAlreadyExists):
				conflicts.Add(1)
			default:
				errs <- fmt.Errorf("unexpected error: %w", err)
			}
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		s.Fail(err.Error())
	}
	s.Equal(int32(1), created.Load())
	s.Equal(int32(goroutines-1), conflicts.Load())
}
