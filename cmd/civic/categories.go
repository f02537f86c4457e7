package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"text/tabwriter"

	"github.com/jmerrifield20/civicsync/internal/app"
	"github.com/jmerrifield20/civicsync/internal/model"
	"github.com/spf13/cobra"
)

var categoriesCmd = &cobra.Command{
	Use:     "categories",
	Aliases: []string{"cat"},
	Short:   "Browse report categories",
}

func init() {
	categoriesCmd.AddCommand(categoriesListCmd)
	categoriesCmd.AddCommand(categoriesGetCmd)
	categoriesCmd.AddCommand(categoriesSearchCmd)
	categoriesCmd.AddCommand(categoriesRefreshCmd)
}

var categoriesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List active categories",
	RunE: withApp(func(ctx context.Context, a *app.App, _ []string) error {
		return printCategories(a.Categories.ListActive(ctx))
	}),
}

var categoriesGetCmd = &cobra.Command{
	Use:   "get <id>",
	Short: "Show a category and its required fields",
	Args:  cobra.ExactArgs(1),
	RunE: withApp(func(ctx context.Context, a *app.App, args []string) error {
		id, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid category id %q", args[0])
		}
		c, tier, err := a.Categories.Get(ctx, id)
		if err != nil {
			return err
		}
		if outputFormat == "json" {
			return printJSON(map[string]any{"category": c, "tier": tier})
		}
		fmt.Printf("ID:        %d\n", c.ID)
		fmt.Printf("Name:      %s %s\n", c.Icon, c.Name)
		fmt.Printf("Priority:  %s\n", c.Priority)
		fmt.Printf("Location:  %s\n", yesNo(c.RequiresLocation, "required", "optional"))
		fmt.Printf("Photo:     %s\n", yesNo(c.RequiresPhoto, "required", "optional"))
		if c.ExpectedResponseTime != nil {
			fmt.Printf("Response:  %dh\n", *c.ExpectedResponseTime)
		}
		for _, f := range c.CustomFields {
			fmt.Printf("Field:     %s (%s)%s\n", f.Key, f.Label, yesNo(f.Required, " required", ""))
		}
		if c.Description != "" {
			fmt.Printf("\n%s\n", c.Description)
		}
		return nil
	}),
}

var categoriesSearchCmd = &cobra.Command{
	Use:   "search <term>",
	Short: "Find active categories by name or description",
	Args:  cobra.ExactArgs(1),
	RunE: withApp(func(ctx context.Context, a *app.App, args []string) error {
		return printCategories(a.Categories.Search(ctx, args[0]))
	}),
}

var categoriesRefreshCmd = &cobra.Command{
	Use:   "refresh",
	Short: "Fetch categories from the backend now, ignoring the cache TTL",
	RunE: withApp(func(ctx context.Context, a *app.App, _ []string) error {
		if !a.Categories.ForceRefresh(ctx) {
			return errors.New("backend unreachable, keeping cached categories")
		}
		fmt.Println("Categories refreshed.")
		return nil
	}),
}

func printCategories(cats []model.Category) error {
	if outputFormat == "json" {
		return printJSON(cats)
	}
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tPRIORITY\tLOCATION\tPHOTO")
	for _, c := range cats {
		fmt.Fprintf(w, "%d\t%s %s\t%s\t%s\t%s\n", c.ID, c.Icon, c.Name, c.Priority,
			yesNo(c.RequiresLocation, "required", "-"), yesNo(c.RequiresPhoto, "required", "-"))
	}
	return w.Flush()
}
