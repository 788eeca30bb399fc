package cli

import "fmt"

// exclusive returns an error when more than one action flag is set
func exclusive(actions map[string]bool) error {
	var set []string
	for name, on := range actions {
		if on {
			set = append(set, "-"+name)
		}
	}
	if len(set) > 1 {
		return usageError("flags %v cannot be combined", set)
	}
	return nil
}

func runGroups(e *env, args []string) error {
	fs := newFlagSet(e, "groups")
	create := fs.String("create", "", "create a group")
	del := fs.String("delete", "", "delete a group")
	add := fs.String("add", "", "add user to -group")
	remove := fs.String("remove", "", "remove user from -group")
	addLeader := fs.String("add-leader", "", "make user a leader of -group")
	removeLeader := fs.String("remove-leader", "", "drop user as leader of -group")
	group := fs.String("group", "", "group to act on, or to show when alone")
	if err := parse(fs, args); err != nil {
		return err
	}

	if err := exclusive(map[string]bool{
		"create":        *create != "",
		"delete":        *del != "",
		"add":           *add != "",
		"remove":        *remove != "",
		"add-leader":    *addLeader != "",
		"remove-leader": *removeLeader != "",
	}); err != nil {
		return err
	}

	store, err := openStore(e.ctx, e.cfg)
	if err != nil {
		return err
	}

	needGroup := func() error {
		if *group == "" {
			return usageError("-group is required")
		}
		return nil
	}

	switch {
	case *create != "":
		g, err := store.CreateGroup(e.ctx, *create)
		if err != nil {
			return err
		}
		fmt.Fprintf(e.stdout, "group %q created\n", g.Name)

	case *del != "":
		if err := store.DeleteGroup(e.ctx, *del); err != nil {
			return err
		}
		fmt.Fprintf(e.stdout, "group %q deleted\n", *del)

	case *add != "":
		if err := needGroup(); err != nil {
			return err
		}
		if err := store.AddUserToGroup(e.ctx, *add, *group); err != nil {
			return err
		}
		fmt.Fprintf(e.stdout, "user %q added to group %q\n", *add, *group)

	case *remove != "":
		if err := needGroup(); err != nil {
			return err
		}
		if err := store.RemoveUserFromGroup(e.ctx, *remove, *group); err != nil {
			return err
		}
		fmt.Fprintf(e.stdout, "user %q removed from group %q\n", *remove, *group)

	case *addLeader != "":
		if err := needGroup(); err != nil {
			return err
		}
		if err := store.AddLeaderToGroup(e.ctx, *addLeader, *group); err != nil {
			return err
		}
		fmt.Fprintf(e.stdout, "user %q now leads group %q\n", *addLeader, *group)

	case *removeLeader != "":
		if err := needGroup(); err != nil {
			return err
		}
		if err := store.RemoveLeaderFromGroup(e.ctx, *removeLeader, *group); err != nil {
			return err
		}
		fmt.Fprintf(e.stdout, "user %q no longer leads group %q\n", *removeLeader, *group)

	case *group != "":
		g, err := store.GetGroup(e.ctx, *group)
		if err != nil {
			return err
		}
		return printJSON(e.stdout, g)

	default:
		groups, err := store.ListGroups(e.ctx)
		if err != nil {
			return err
		}
		return printJSON(e.stdout, groups)
	}
	return nil
}

func runUsers(e *env, args []string) error {
	fs := newFlagSet(e, "users")
	create := fs.String("create", "", "create a user")
	group := fs.String("group", "", "initial group for -create (default: public)")
	del := fs.String("delete", "", "delete a user with their tokens")
	username := fs.String("username", "", "show a user")
	if err := parse(fs, args); err != nil {
		return err
	}

	if err := exclusive(map[string]bool{
		"create":   *create != "",
		"delete":   *del != "",
		"username": *username != "",
	}); err != nil {
		return err
	}

	store, err := openStore(e.ctx, e.cfg)
	if err != nil {
		return err
	}

	switch {
	case *create != "":
		u, err := store.CreateUser(e.ctx, *create, *group)
		if err != nil {
			return err
		}
		fmt.Fprintf(e.stdout, "user %q created\n", u.Username)

	case *del != "":
		if err := store.DeleteUser(e.ctx, *del); err != nil {
			return err
		}
		fmt.Fprintf(e.stdout, "user %q deleted\n", *del)

	case *username != "":
		u, err := store.GetUser(e.ctx, *username)
		if err != nil {
			return err
		}
		return printJSON(e.stdout, u)

	default:
		users, err := store.ListUsers(e.ctx)
		if err != nil {
			return err
		}
		return printJSON(e.stdout, users)
	}
	return nil
}

func runTokens(e *env, args []string) error {
	fs := newFlagSet(e, "tokens")
	username := fs.String("username", "", "token owner (required)")
	create := fs.Bool("create", false, "issue a new token")
	del := fs.String("delete", "", "revoke a token")
	check := fs.String("check", "", "check whether a token is valid")
	if err := parse(fs, args); err != nil {
		return err
	}

	if *username == "" {
		return usageError("-username is required")
	}
	if err := exclusive(map[string]bool{
		"create": *create,
		"delete": *del != "",
		"check":  *check != "",
	}); err != nil {
		return err
	}

	store, err := openStore(e.ctx, e.cfg)
	if err != nil {
		return err
	}

	switch {
	case *create:
		token, err := store.CreateToken(e.ctx, *username)
		if err != nil {
			return err
		}
		fmt.Fprintln(e.stdout, token)

	case *del != "":
		if err := store.DeleteToken(e.ctx, *username, *del); err != nil {
			return err
		}
		fmt.Fprintln(e.stdout, "token deleted")

	case *check != "":
		_, ok, err := store.TokenExists(e.ctx, *username, *check)
		if err != nil {
			return err
		}
		if !ok {
			return &ExitError{Code: exitError, Message: "token not valid"}
		}
		fmt.Fprintln(e.stdout, "token valid")

	default:
		u, err := store.GetUser(e.ctx, *username)
		if err != nil {
			return err
		}
		return printJSON(e.stdout, u.Tokens)
	}
	return nil
}
