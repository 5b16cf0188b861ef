package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"time"

	"github.com/utafrali/EcommerceGo/pkg/cartsync"
	"github.com/utafrali/EcommerceGo/pkg/cartsync/identity"
	"github.com/utafrali/EcommerceGo/pkg/middleware"
)

type command func(ctx context.Context, s *session, args []string) error

var commands = map[string]command{
	"show":    runShow,
	"add":     runAdd,
	"update":  runUpdate,
	"remove":  runRemove,
	"clear":   runClear,
	"login":   runLogin,
	"logout":  runLogout,
	"refresh": runRefresh,
}

func runShow(_ context.Context, _ *session, args []string) error {
	return flag.NewFlagSet("show", flag.ContinueOnError).Parse(args)
}

func runAdd(ctx context.Context, s *session, args []string) error {
	fs := flag.NewFlagSet("add", flag.ContinueOnError)
	product := fs.String("product", "", "product id (required)")
	size := fs.String("size", "", "size")
	color := fs.String("color", "", "color")
	name := fs.String("name", "", "display name")
	slug := fs.String("slug", "", "product slug")
	image := fs.String("image", "", "image URL")
	price := fs.Int64("price", 0, "unit price in cents")
	sale := fs.Int64("sale", -1, "sale price in cents (-1 for none)")
	stock := fs.Int("stock", 0, "available stock")
	qty := fs.Int("qty", 1, "quantity")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *product == "" {
		return errors.New("add: -product is required")
	}

	unit := cartsync.Unit{
		Name:  *name,
		Slug:  *slug,
		Image: *image,
		Price: *price,
		Stock: *stock,
	}
	if *sale >= 0 {
		unit.SalePrice = sale
	}

	_, err := s.manager.AddLine(ctx, *product, *size, *color, unit, *qty)
	return err
}

func runUpdate(ctx context.Context, s *session, args []string) error {
	fs := flag.NewFlagSet("update", flag.ContinueOnError)
	line := fs.String("line", "", "line id (required)")
	qty := fs.Int("qty", 1, "new quantity; below 1 removes the line")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *line == "" {
		return errors.New("update: -line is required")
	}

	_, err := s.manager.UpdateQuantity(ctx, *line, *qty)
	return err
}

func runRemove(ctx context.Context, s *session, args []string) error {
	fs := flag.NewFlagSet("remove", flag.ContinueOnError)
	line := fs.String("line", "", "line id (required)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *line == "" {
		return errors.New("remove: -line is required")
	}
	return s.manager.RemoveLine(ctx, *line)
}

func runClear(ctx context.Context, s *session, args []string) error {
	if err := flag.NewFlagSet("clear", flag.ContinueOnError).Parse(args); err != nil {
		return err
	}
	return s.manager.Clear(ctx)
}

func runLogin(ctx context.Context, s *session, args []string) error {
	fs := flag.NewFlagSet("login", flag.ContinueOnError)
	user := fs.String("user", "", "user id (required)")
	token := fs.String("token", "", "bearer token")
	secret := fs.String("secret", "", "sign a token locally with this HMAC key (development)")
	ttl := fs.Duration("ttl", 24*time.Hour, "lifetime of a locally signed token")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *user == "" {
		return errors.New("login: -user is required")
	}

	tok := *token
	if tok == "" && *secret != "" {
		signed, err := middleware.IssueToken(*secret, *user, *ttl)
		if err != nil {
			return fmt.Errorf("login: %w", err)
		}
		tok = signed
	}

	id := identity.User(*user, tok)
	if err := s.saveIdentity(id); err != nil {
		return err
	}
	return s.manager.HandleIdentity(ctx, id)
}

func runLogout(ctx context.Context, s *session, args []string) error {
	if err := flag.NewFlagSet("logout", flag.ContinueOnError).Parse(args); err != nil {
		return err
	}
	if err := s.saveIdentity(identity.Guest()); err != nil {
		return err
	}
	return s.manager.HandleIdentity(ctx, identity.Guest())
}

func runRefresh(ctx context.Context, s *session, args []string) error {
	if err := flag.NewFlagSet("refresh", flag.ContinueOnError).Parse(args); err != nil {
		return err
	}
	_, err := s.manager.Refresh(ctx)
	return err
}
