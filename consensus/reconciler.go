package consensus

import (
	"encoding/binary"
	"fmt"
	"log/slog"

	"github.com/luca-patrignani/multichain/ledger"
)

// Report describes one reconciliation as seen by a member.
type Report struct {
	// Lengths holds the ledger length of every member, by local rank.
	Lengths   []int
	MaxLength int
	// Authority is the member whose ledger was copied: the lowest local
	// rank holding MaxLength.
	Authority int
	// AuthorityWasLeader is true when the authority is local rank 0, i.e.
	// when assuming the leader is longest would have given the same result.
	AuthorityWasLeader bool
	// Synced lists the members that received the authority's ledger.
	Synced []int
	// Replaced is true when this member's ledger was replaced.
	Replaced bool
}

// Reconciler brings every member of a group to the same ledger length.
type Reconciler struct {
	Group     NetworkLayer
	Store     Store
	Validator Validator
	Logger    *slog.Logger
}

// Reconcile compares lengths across the group and replaces the ledger of
// every member whose length differs from the longest one. It returns the
// ledger the caller must use from now on: a new object when replaced,
// l otherwise.
func (r *Reconciler) Reconcile(l *ledger.Ledger) (*ledger.Ledger, Report, error) {
	var report Report
	own := make([]byte, 8)
	binary.BigEndian.PutUint64(own, uint64(l.Length()))
	lengths, err := r.Group.AllGather(own)
	if err != nil {
		return l, report, fmt.Errorf("could not exchange ledger lengths: %w", err)
	}
	report.Lengths = make([]int, len(lengths))
	report.Authority = -1
	for i, b := range lengths {
		if len(b) != 8 {
			return l, report, fmt.Errorf("malformed length of %d bytes from %d", len(b), i)
		}
		n := int(binary.BigEndian.Uint64(b))
		report.Lengths[i] = n
		if report.Authority < 0 || n > report.MaxLength {
			report.MaxLength = n
			report.Authority = i
		}
	}
	report.AuthorityWasLeader = report.Authority == 0
	for i, n := range report.Lengths {
		if n != report.MaxLength {
			report.Synced = append(report.Synced, i)
		}
	}

	rank := r.Group.Rank()
	needsSync := report.Lengths[rank] != report.MaxLength
	flag := []byte{0}
	if needsSync {
		flag[0] = 1
	}
	flags, err := r.Group.Gather(flag, report.Authority)
	if err != nil {
		return l, report, fmt.Errorf("could not gather sync requests: %w", err)
	}

	result := l
	var syncErr error
	switch {
	case rank == report.Authority:
		syncErr = r.serve(l, flags)
	case needsSync:
		result, syncErr = r.replace(l, report.Authority)
		report.Replaced = result != l
	}
	if err := r.Group.Barrier(); err != nil {
		return result, report, fmt.Errorf("barrier after reconciliation: %w", err)
	}
	if syncErr != nil {
		return result, report, syncErr
	}
	r.logger().Info("ledger reconciled",
		"length", result.Length(),
		"authority", report.Authority,
		"authority_was_leader", report.AuthorityWasLeader,
		"replaced", report.Replaced)
	return result, report, nil
}

func (r *Reconciler) serve(l *ledger.Ledger, flags [][]byte) error {
	var data []byte
	for i, f := range flags {
		if len(f) == 0 || f[0] == 0 {
			continue
		}
		if data == nil {
			var err error
			if data, err = ledger.Encode(l.Export()); err != nil {
				return err
			}
		}
		if err := r.Group.Send(data, i, TagLedger); err != nil {
			return fmt.Errorf("could not send ledger to %d: %w", i, err)
		}
	}
	return nil
}

func (r *Reconciler) replace(l *ledger.Ledger, authority int) (*ledger.Ledger, error) {
	msg, err := r.Group.Recv(authority, TagLedger)
	if err != nil {
		return l, err
	}
	var chain ledger.Chain
	if err := ledger.Decode(msg.Payload, &chain); err != nil {
		return l, fmt.Errorf("malformed ledger from %d: %w", authority, err)
	}
	validator := r.Validator
	if validator == nil {
		validator = TrustAll{}
	}
	if err := validator.ValidateChain(chain); err != nil {
		r.logger().Error("ledger refused", "from", authority, "error", err)
		return l, err
	}
	replacement := ledger.FromChain(chain)
	if r.Store != nil {
		if err := r.Store.Rewrite(replacement.Blocks()); err != nil {
			return replacement, fmt.Errorf("could not persist replacement ledger: %w", err)
		}
	}
	return replacement, nil
}

func (r *Reconciler) logger() *slog.Logger {
	if r.Logger == nil {
		return slog.Default()
	}
	return r.Logger
}
