package core

import (
	"bytes"
	"cmp"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"slices"
	"strconv"
	"time"

	"github.com/google/uuid"

	blobcore "kittycore/internal/blob/core"
	"kittycore/pkg/pow"
)

// ReceiptPrefix is the blob key prefix under which admission receipts live.
const ReceiptPrefix = "receipts/"

// Receipt records an admitted proof and the kitty it produced.
type Receipt struct {
	ID         string    `json:"id"`
	Proof      pow.Proof `json:"proof"`
	Nonce      uint32    `json:"nonce"`
	ChildID    KittyID   `json:"child_id"`
	Owner      AccountID `json:"owner"`
	AcceptedAt time.Time `json:"accepted_at"`
}

// Key returns the blob key of the receipt. The nonce is zero padded so keys
// list in admission order.
func (r Receipt) Key() string {
	return fmt.Sprintf("%s%010d-%d.json", ReceiptPrefix, r.Nonce, r.ChildID)
}

func newReceipt(p pow.Proof, nonce uint32, child Kitty, at time.Time) Receipt {
	return Receipt{
		ID:         uuid.NewString(),
		Proof:      p,
		Nonce:      nonce,
		ChildID:    child.ID,
		Owner:      child.Owner,
		AcceptedAt: at,
	}
}

type receiptArchive struct {
	store blobcore.Store
}

func newReceiptArchive(store blobcore.Store) *receiptArchive {
	return &receiptArchive{store: store}
}

func (a *receiptArchive) archive(ctx context.Context, r Receipt) error {
	payload, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("encode receipt: %w", err)
	}
	_, err = a.store.Put(ctx, r.Key(), bytes.NewReader(payload), blobcore.PutOptions{
		ContentType: "application/json",
		Metadata: map[string]string{
			"nonce": strconv.FormatUint(uint64(r.Nonce), 10),
			"child": strconv.FormatUint(uint64(r.ChildID), 10),
		},
	})
	return err
}

// LoadReceipts reads every archived receipt ordered by nonce.
func LoadReceipts(ctx context.Context, store blobcore.Store) ([]Receipt, error) {
	infos, err := store.List(ctx, ReceiptPrefix)
	if err != nil {
		return nil, fmt.Errorf("list receipts: %w", err)
	}
	out := make([]Receipt, 0, len(infos))
	for _, info := range infos {
		_, rc, err := store.Get(ctx, info.Key)
		if err != nil {
			return nil, fmt.Errorf("get %s: %w", info.Key, err)
		}
		body, err := io.ReadAll(rc)
		_ = rc.Close()
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", info.Key, err)
		}
		var r Receipt
		if err := json.Unmarshal(body, &r); err != nil {
			return nil, fmt.Errorf("decode %s: %w", info.Key, err)
		}
		out = append(out, r)
	}
	slices.SortStableFunc(out, func(a, b Receipt) int { return cmp.Compare(a.Nonce, b.Nonce) })
	return out, nil
}
