// Package main implements the administration CLI: actor and prefix
// provisioning, consistency checks, and manual processing or delivery
// of stored activities.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"

	"fedbox/application/commands"
	"fedbox/infrastructure/config"
	"fedbox/infrastructure/di"
	"fedbox/infrastructure/persistence/schema"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	ctx := context.Background()
	container, err := di.InitializeContainer(ctx, cfg)
	if err != nil {
		log.Fatalf("Failed to initialize container: %v", err)
	}
	defer container.Logger.Sync()

	var runErr error
	switch os.Args[1] {
	case "actor-create":
		runErr = actorCreate(ctx, container, os.Args[2:])
	case "prefix-register":
		runErr = prefixRegister(ctx, container, os.Args[2:])
	case "fsck":
		runErr = fsck(ctx, container, os.Args[2:])
	case "process":
		runErr = process(ctx, container, os.Args[2:])
	case "deliver":
		runErr = deliver(ctx, container, os.Args[2:])
	case "init-tables":
		runErr = initTables(ctx, container)
	default:
		usage()
		os.Exit(2)
	}
	if runErr != nil {
		fmt.Fprintln(os.Stderr, "error:", runErr)
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, `usage: fedboxctl <command> [flags]

commands:
  actor-create     provision a local actor with boxes and a keypair
  prefix-register  mark a domain prefix as served by this instance
  fsck             check (and optionally repair) store consistency
  process          carry out the side effects of a stored activity
  deliver          push a stored activity to its audience
  init-tables      provision the DynamoDB tables`)
}

func actorCreate(ctx context.Context, c *di.Container, args []string) error {
	fs := flag.NewFlagSet("actor-create", flag.ExitOnError)
	prefix := fs.String("prefix", "", "serving prefix, e.g. https://example.com")
	username := fs.String("username", "", "preferred username")
	name := fs.String("name", "", "display name")
	role := fs.String("role", "", "server role for instance actors")
	password := fs.String("password", "", "credential for token issuance")
	fs.Parse(args)

	cmd := &commands.CreateActor{
		Prefix:   *prefix,
		Username: *username,
		Name:     *name,
		Role:     *role,
		Password: *password,
	}
	if err := c.CommandBus.Send(ctx, cmd); err != nil {
		return err
	}
	fmt.Println(cmd.Result.Value)
	return nil
}

func prefixRegister(ctx context.Context, c *di.Container, args []string) error {
	fs := flag.NewFlagSet("prefix-register", flag.ExitOnError)
	prefix := fs.String("prefix", "", "prefix to serve, e.g. https://example.com")
	fs.Parse(args)

	cmd := &commands.RegisterPrefix{Prefix: *prefix}
	if err := c.CommandBus.Send(ctx, cmd); err != nil {
		return err
	}
	fmt.Println("registered", cmd.Result.Value)
	return nil
}

func fsck(ctx context.Context, c *di.Container, args []string) error {
	fs := flag.NewFlagSet("fsck", flag.ExitOnError)
	repair := fs.Bool("repair", false, "repair the problems found")
	fs.Parse(args)

	cmd := &commands.CheckConsistency{Repair: *repair}
	if err := c.CommandBus.Send(ctx, cmd); err != nil {
		return err
	}
	for _, problem := range cmd.Problems {
		fmt.Println(problem)
	}
	fmt.Printf("%d problems, %d repaired\n", len(cmd.Problems), cmd.Repaired)
	return nil
}

func process(ctx context.Context, c *di.Container, args []string) error {
	fs := flag.NewFlagSet("process", flag.ExitOnError)
	activity := fs.String("activity", "", "IRI of the stored activity")
	fs.Parse(args)

	return c.CommandBus.Send(ctx, &commands.ProcessActivity{ActivityIRI: *activity})
}

func initTables(ctx context.Context, c *di.Container) error {
	cfg := c.Config
	if cfg.StoreBackend != "dynamodb" {
		return fmt.Errorf("store backend is %q, nothing to provision", cfg.StoreBackend)
	}
	awsCfg, err := di.ProvideAWSConfig(ctx, cfg)
	if err != nil {
		return err
	}
	client := di.ProvideDynamoDBClient(awsCfg)
	return schema.EnsureTables(ctx, client, cfg.DynamoDBTable, cfg.LocksTable, c.Logger)
}

func deliver(ctx context.Context, c *di.Container, args []string) error {
	fs := flag.NewFlagSet("deliver", flag.ExitOnError)
	activity := fs.String("activity", "", "IRI of the stored activity")
	fs.Parse(args)

	cmd := &commands.DeliverActivity{ActivityIRI: *activity}
	err := c.CommandBus.Send(ctx, cmd)
	for _, inbox := range cmd.Succeeded {
		fmt.Println("delivered:", inbox)
	}
	for _, inbox := range cmd.Failed {
		fmt.Println("failed:", inbox)
	}
	return err
}
