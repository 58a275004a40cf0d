package main

import (
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"

	"qrguard/internal/api"
)

type command struct {
	usage   string
	minArgs int
	run     func(e *env) (any, error)
}

// status is the result of commands that return nothing else.
type status struct {
	OK      bool   `json:"ok" yaml:"ok"`
	Message string `json:"message,omitempty" yaml:"message,omitempty"`
}

var commands = map[string]command{
	"login": {"<email> [password]", 1, func(e *env) (any, error) {
		password := e.secret(1, "Password: ")
		return e.app.API.Login(e.ctx, e.arg(0), password)
	}},
	"signup": {"<email> <username> [password]", 2, func(e *env) (any, error) {
		password := e.secret(2, "Password: ")
		return e.app.API.Signup(e.ctx, e.arg(0), e.arg(1), password)
	}},
	"oauth": {"<" + strings.Join(api.Providers, "|") + ">", 1, func(e *env) (any, error) {
		err := e.app.OAuthLogin(e.ctx, e.arg(0), func(url string) error {
			_, err := fmt.Fprintf(e.stderr, "Open this address to sign in:\n  %s\n", url)
			return err
		})
		if err != nil {
			return nil, err
		}
		return e.app.Session.Snapshot(e.ctx), nil
	}},
	"logout": {"", 0, func(e *env) (any, error) {
		e.app.API.Logout(e.ctx)
		return status{OK: true}, nil
	}},
	"whoami": {"", 0, func(e *env) (any, error) {
		return e.app.Session.Snapshot(e.ctx), nil
	}},
	"profile": {"[new-username]", 0, func(e *env) (any, error) {
		if name := e.arg(0); name != "" {
			return e.app.API.UpdateProfile(e.ctx, name)
		}
		return e.app.API.Me(e.ctx)
	}},
	"password": {"[current] [new]", 0, func(e *env) (any, error) {
		current := e.secret(0, "Current password: ")
		next := e.secret(1, "New password: ")
		if err := e.app.API.ChangePassword(e.ctx, current, next); err != nil {
			return nil, err
		}
		return status{OK: true, Message: "password changed"}, nil
	}},
	"delete-account": {"", 0, func(e *env) (any, error) {
		if err := e.app.API.DeleteAccount(e.ctx); err != nil {
			return nil, err
		}
		return status{OK: true, Message: "account deleted"}, nil
	}},
	"analyze-url": {"<url>", 1, func(e *env) (any, error) {
		return e.app.API.AnalyzeURL(e.ctx, e.arg(0))
	}},
	"analyze-image": {"<file>", 1, func(e *env) (any, error) {
		f, err := os.Open(e.arg(0))
		if err != nil {
			return nil, err
		}
		defer f.Close()
		return e.app.API.AnalyzeImage(e.ctx, f.Name(), f)
	}},
	"history": {"[page] [size]", 0, func(e *env) (any, error) {
		page, size, err := pageArgs(e, 0)
		if err != nil {
			return nil, err
		}
		return e.app.API.History(e.ctx, page, size)
	}},
	"analysis": {"<id> [delete]", 1, func(e *env) (any, error) {
		id, err := idArg(e, 0)
		if err != nil {
			return nil, err
		}
		if e.arg(1) == "delete" {
			if err := e.app.API.DeleteAnalysis(e.ctx, id); err != nil {
				return nil, err
			}
			return status{OK: true, Message: "analysis deleted"}, nil
		}
		return e.app.API.GetAnalysis(e.ctx, id)
	}},
	"posts": {"[page] [size] [query]", 0, func(e *env) (any, error) {
		page, size, err := pageArgs(e, 0)
		if err != nil {
			return nil, err
		}
		return e.app.API.ListPosts(e.ctx, page, size, strings.Join(tail(e.args, 2), " "))
	}},
	"post": {"<id>", 1, func(e *env) (any, error) {
		id, err := idArg(e, 0)
		if err != nil {
			return nil, err
		}
		return e.app.API.GetPost(e.ctx, id)
	}},
	"create-post": {"<title> <content> [image]", 2, func(e *env) (any, error) {
		in := api.NewPost{Title: e.arg(0), Content: e.arg(1)}
		if path := e.arg(2); path != "" {
			f, err := os.Open(path)
			if err != nil {
				return nil, err
			}
			defer f.Close()
			in.ImageName, in.Image = f.Name(), f
		}
		return e.app.API.CreatePost(e.ctx, in)
	}},
	"delete-post": {"<id>", 1, func(e *env) (any, error) {
		id, err := idArg(e, 0)
		if err != nil {
			return nil, err
		}
		if err := e.app.API.DeletePost(e.ctx, id); err != nil {
			return nil, err
		}
		return status{OK: true, Message: "post deleted"}, nil
	}},
	"report-post": {"<id> [reason]", 1, func(e *env) (any, error) {
		id, err := idArg(e, 0)
		if err != nil {
			return nil, err
		}
		if err := e.app.API.ReportPost(e.ctx, id, strings.Join(tail(e.args, 1), " ")); err != nil {
			return nil, err
		}
		e.app.Notices.Success("Thanks, the post was reported.")
		return status{OK: true, Message: "post reported"}, nil
	}},
	"comments": {"<post-id>", 1, func(e *env) (any, error) {
		id, err := idArg(e, 0)
		if err != nil {
			return nil, err
		}
		return e.app.API.ListComments(e.ctx, id)
	}},
	"comment": {"<post-id> <content>", 2, func(e *env) (any, error) {
		id, err := idArg(e, 0)
		if err != nil {
			return nil, err
		}
		return e.app.API.CreateComment(e.ctx, id, strings.Join(tail(e.args, 1), " "))
	}},
	"chat": {"[message]", 0, func(e *env) (any, error) {
		text := strings.Join(e.args, " ")
		if text == "" {
			return e.app.Chat.Transcript(e.ctx)
		}
		return e.app.SendChat(e.ctx, text)
	}},
}

func commandNames() []string {
	names := make([]string, 0, len(commands))
	for n := range commands {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

func tail(args []string, from int) []string {
	if from >= len(args) {
		return nil
	}
	return args[from:]
}

func idArg(e *env, i int) (uint, error) {
	n, err := strconv.ParseUint(e.arg(i), 10, 64)
	if err != nil || n == 0 {
		return 0, fmt.Errorf("%w: %q is not a valid id", api.ErrInvalidInput, e.arg(i))
	}
	return uint(n), nil
}

// pageArgs reads optional page and size arguments starting at i. Zero means
// the default.
func pageArgs(e *env, i int) (page, size int, err error) {
	for j, dst := range []*int{&page, &size} {
		raw := e.arg(i + j)
		if raw == "" {
			continue
		}
		if *dst, err = strconv.Atoi(raw); err != nil {
			return 0, 0, fmt.Errorf("%w: %q is not a number", api.ErrInvalidInput, raw)
		}
	}
	return page, size, nil
}
