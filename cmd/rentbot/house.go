package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"rentbot/internal/domain"
	"rentbot/internal/logger"
)

func houseCMD() *cobra.Command {
	house := &cobra.Command{
		Use:   "house",
		Short: "Manage houses and their knowledge bases",
	}
	house.AddCommand(houseCreateCMD(), houseListCMD(), houseAddCMD(), houseLoadCMD())
	return house
}

func houseCreateCMD() *cobra.Command {
	var landlord, address string
	create := &cobra.Command{
		Use:   "create NAME",
		Short: "Create a house owned by a landlord",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cfg, false)
			if err != nil {
				return err
			}
			defer a.Close()

			ctx := cmd.Context()
			landlordID, err := a.store.EnsureUser(ctx, landlord, domain.RoleLandlord, 0)
			if err != nil {
				return fmt.Errorf("landlord %q: %w", landlord, err)
			}
			id, err := a.store.CreateHouse(ctx, landlordID, args[0], address)
			if err != nil {
				return err
			}
			cmd.Printf("Created house %d (%s)\n", id, args[0])
			return nil
		},
	}
	create.Flags().StringVar(&landlord, "landlord", "", "landlord username (created if missing)")
	create.Flags().StringVar(&address, "address", "", "house address")
	_ = create.MarkFlagRequired("landlord")
	return create
}

func houseListCMD() *cobra.Command {
	var landlord string
	list := &cobra.Command{
		Use:   "list",
		Short: "List a landlord's houses",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cfg, false)
			if err != nil {
				return err
			}
			defer a.Close()

			ctx := cmd.Context()
			u, err := a.store.FindUser(ctx, landlord)
			if err != nil {
				return err
			}
			houses, err := a.store.ListHouses(ctx, u.ID)
			if err != nil {
				return err
			}
			if len(houses) == 0 {
				cmd.Println("No houses found.")
				return nil
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 2, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tNAME\tADDRESS\tDOCUMENTS\tCREATED")
			for _, h := range houses {
				docs, err := a.store.ListDocuments(ctx, h.ID)
				if err != nil {
					return err
				}
				fmt.Fprintf(tw, "%d\t%s\t%s\t%d\t%s\n", h.ID, h.Name, h.Address, len(docs), h.CreatedAt.Format(time.RFC3339))
			}
			return tw.Flush()
		},
	}
	list.Flags().StringVar(&landlord, "landlord", "", "landlord username")
	_ = list.MarkFlagRequired("landlord")
	return list
}

func houseAddCMD() *cobra.Command {
	return &cobra.Command{
		Use:   "add HOUSE_ID FILE...",
		Short: "Add documents to a house knowledge base",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			houseID, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("house id %q: %w", args[0], domain.ErrInvalidInput)
			}
			a, err := newApp(cfg, false)
			if err != nil {
				return err
			}
			defer a.Close()

			for _, path := range args[1:] {
				raw, err := os.ReadFile(path)
				if err != nil {
					return err
				}
				reg, err := a.resolver.AddHouseDocument(cmd.Context(), houseID, filepath.Base(path), raw)
				if errors.Is(err, domain.ErrDuplicateDocument) {
					cmd.Printf("Skipped %s: already stored as %s\n", path, reg.StoragePath)
					continue
				}
				if err != nil {
					return err
				}
				cmd.Printf("Stored %s as %s\n", path, reg.StoragePath)
			}
			return nil
		},
	}
}

func houseLoadCMD() *cobra.Command {
	return &cobra.Command{
		Use:   "load HOUSE_ID",
		Short: "Rebuild a house knowledge base and report what was indexed",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			houseID, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("house id %q: %w", args[0], domain.ErrInvalidInput)
			}
			a, err := newApp(cfg, false)
			if err != nil {
				return err
			}
			defer a.Close()

			ctx := cmd.Context()
			logger.Section(fmt.Sprintf("House %d", houseID))
			ok, err := a.store.HasDocuments(ctx, houseID)
			if err != nil {
				return err
			}
			if !ok {
				cmd.Println("No knowledge base files found.")
				return nil
			}
			n, err := a.resolver.LoadHouse(ctx, houseID)
			if err != nil {
				return err
			}
			cmd.Printf("Loaded house %d: %d chunks\n", houseID, n)
			return nil
		},
	}
}

func userCMD() *cobra.Command {
	user := &cobra.Command{
		Use:   "user",
		Short: "Manage tenants and landlords",
	}

	var (
		role    string
		houseID int64
	)
	add := &cobra.Command{
		Use:   "add USERNAME",
		Short: "Register a tenant or landlord",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cfg, false)
			if err != nil {
				return err
			}
			defer a.Close()

			r := domain.Role(role)
			if r == domain.RoleLandlord && houseID != 0 {
				logger.Warn("landlords are not bound to a house; ignoring --house")
				houseID = 0
			}
			id, err := a.store.EnsureUser(cmd.Context(), args[0], r, houseID)
			if err != nil {
				return err
			}
			cmd.Printf("User %s has id %d\n", args[0], id)
			return nil
		},
	}
	add.Flags().StringVar(&role, "role", string(domain.RoleTenant), "tenant or landlord")
	add.Flags().Int64Var(&houseID, "house", 0, "house a tenant rents")
	user.AddCommand(add)
	return user
}
