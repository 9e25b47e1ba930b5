package main

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"kittycore/internal/core"
	"kittycore/pkg/domain"
)

func (a *app) printJSON(v any) error {
	enc := json.NewEncoder(a.stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func (a *app) mintCmd() *cobra.Command {
	var (
		owner string
		count int
	)
	cmd := &cobra.Command{
		Use:   "mint",
		Short: "Create kitties with random DNA",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if owner == "" {
				return errors.New("--owner is required")
			}
			if count <= 0 {
				return fmt.Errorf("--count must be positive, got %d", count)
			}
			rt, err := a.open(cmd.Context())
			if err != nil {
				return err
			}
			defer func() { _ = rt.Close() }()
			minted := make([]core.Kitty, 0, count)
			for range count {
				k, _, err := rt.svc.CreateKitty(cmd.Context(), core.AccountID(owner))
				if err != nil {
					return fmt.Errorf("mint: %w", err)
				}
				minted = append(minted, k)
			}
			return a.printJSON(minted)
		},
	}
	cmd.Flags().StringVar(&owner, "owner", "", "owner account")
	cmd.Flags().IntVar(&count, "count", 1, "number of kitties to mint")
	return cmd
}

func (a *app) breedCmd() *cobra.Command {
	var (
		owner         string
		first, second uint32
	)
	cmd := &cobra.Command{
		Use:   "breed",
		Short: "Breed two kitties owned by the same account",
		RunE: func(cmd *cobra.Command, _ []string) error {
			rt, err := a.open(cmd.Context())
			if err != nil {
				return err
			}
			defer func() { _ = rt.Close() }()
			child, _, err := rt.svc.Breed(cmd.Context(), core.AccountID(owner), core.KittyID(first), core.KittyID(second))
			if err != nil {
				return err
			}
			return a.printJSON(child)
		},
	}
	cmd.Flags().StringVar(&owner, "owner", "", "owner of both parents")
	cmd.Flags().Uint32Var(&first, "first", 0, "first parent id")
	cmd.Flags().Uint32Var(&second, "second", 0, "second parent id")
	_ = cmd.MarkFlagRequired("owner")
	_ = cmd.MarkFlagRequired("first")
	_ = cmd.MarkFlagRequired("second")
	return cmd
}

func (a *app) transferCmd() *cobra.Command {
	var (
		from, to string
		id       uint32
	)
	cmd := &cobra.Command{
		Use:   "transfer",
		Short: "Move a kitty to another owner",
		RunE: func(cmd *cobra.Command, _ []string) error {
			rt, err := a.open(cmd.Context())
			if err != nil {
				return err
			}
			defer func() { _ = rt.Close() }()
			if err := rt.svc.Transfer(cmd.Context(), core.AccountID(from), core.AccountID(to), core.KittyID(id)); err != nil {
				return err
			}
			k, _ := rt.svc.Lookup(core.KittyID(id))
			return a.printJSON(k)
		},
	}
	cmd.Flags().StringVar(&from, "from", "", "current owner")
	cmd.Flags().StringVar(&to, "to", "", "new owner")
	cmd.Flags().Uint32Var(&id, "id", 0, "kitty id")
	_ = cmd.MarkFlagRequired("from")
	_ = cmd.MarkFlagRequired("to")
	_ = cmd.MarkFlagRequired("id")
	return cmd
}

func (a *app) priceCmd() *cobra.Command {
	var (
		owner    string
		id       uint32
		price    uint64
		withdraw bool
	)
	cmd := &cobra.Command{
		Use:   "price",
		Short: "List a kitty for sale or withdraw its listing",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if !withdraw && !cmd.Flags().Changed("price") {
				return errors.New("either --price or --clear is required")
			}
			rt, err := a.open(cmd.Context())
			if err != nil {
				return err
			}
			defer func() { _ = rt.Close() }()
			var p *core.Balance
			if !withdraw {
				b := core.Balance(price)
				p = &b
			}
			if err := rt.svc.SetPrice(cmd.Context(), core.AccountID(owner), core.KittyID(id), p); err != nil {
				return err
			}
			listing, listed, err := rt.svc.Listing(cmd.Context(), core.KittyID(id))
			if err != nil {
				return err
			}
			return a.printJSON(struct {
				Listed  bool           `json:"listed"`
				Listing domain.Listing `json:"listing"`
			}{listed, listing})
		},
	}
	cmd.Flags().StringVar(&owner, "owner", "", "kitty owner")
	cmd.Flags().Uint32Var(&id, "id", 0, "kitty id")
	cmd.Flags().Uint64Var(&price, "price", 0, "asking price")
	cmd.Flags().BoolVar(&withdraw, "clear", false, "withdraw the listing")
	_ = cmd.MarkFlagRequired("owner")
	_ = cmd.MarkFlagRequired("id")
	return cmd
}

type showOutput struct {
	Population uint32         `json:"population"`
	Nonce      uint32         `json:"nonce"`
	Difficulty uint32         `json:"difficulty"`
	Kitty      *domain.Kitty  `json:"kitty,omitempty"`
	Owned      []domain.Kitty `json:"owned,omitempty"`
}

func (a *app) showCmd() *cobra.Command {
	var (
		id    uint32
		owner string
	)
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Print registry state, optionally one kitty or one owner's kitties",
		RunE: func(cmd *cobra.Command, _ []string) error {
			rt, err := a.open(cmd.Context())
			if err != nil {
				return err
			}
			defer func() { _ = rt.Close() }()
			out := showOutput{
				Population: rt.svc.PopulationSize(),
				Nonce:      rt.svc.CurrentNonce(),
				Difficulty: uint32(rt.svc.Difficulty()),
			}
			if cmd.Flags().Changed("id") {
				k, ok := rt.svc.Lookup(core.KittyID(id))
				if !ok {
					return fmt.Errorf("kitty %d: %w", id, domain.ErrInvalidKittyID)
				}
				out.Kitty = &k
			}
			if owner != "" {
				out.Owned = rt.svc.KittiesOf(core.AccountID(owner))
			}
			return a.printJSON(out)
		},
	}
	cmd.Flags().Uint32Var(&id, "id", 0, "kitty id to include")
	cmd.Flags().StringVar(&owner, "owner", "", "list kitties of this owner")
	return cmd
}

func (a *app) receiptsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "receipts",
		Short: "List archived admission receipts",
		RunE: func(cmd *cobra.Command, _ []string) error {
			rt, err := a.open(cmd.Context())
			if err != nil {
				return err
			}
			defer func() { _ = rt.Close() }()
			if rt.blobs == nil {
				return errors.New("receipt archive disabled (KITTYCORE_ARCHIVE_RECEIPTS=false)")
			}
			receipts, err := core.LoadReceipts(cmd.Context(), rt.blobs)
			if err != nil {
				return err
			}
			return a.printJSON(receipts)
		},
	}
}
