// Command notebookctl runs the operation engine over notebook and operation JSON files.
package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/alecthomas/kong"

	"notebookCollab/backend/internal/httpapi/middleware"
	"notebookCollab/backend/internal/notebook"
	"notebookCollab/backend/internal/ot"
	"notebookCollab/backend/internal/ot/change"
	"notebookCollab/backend/internal/ot/operation"
)

var CLI struct {
	Apply     ApplyCmd     `cmd:"" help:"Apply an operation to a notebook"`
	Invert    InvertCmd    `cmd:"" help:"Print the inverse of an operation"`
	Transform TransformCmd `cmd:"" help:"Transform an operation against a concurrent predecessor"`
	Relevant  RelevantCmd  `cmd:"" help:"List the cells an operation touches"`
	Token     TokenCmd     `cmd:"" help:"Sign a development JWT"`
}

type ApplyCmd struct {
	Notebook string `arg:"" help:"Notebook JSON file" type:"existingfile"`
	Op       string `arg:"" help:"Operation JSON file" type:"existingfile"`
	Changes  bool   `help:"Also print the resulting changes"`
}

func (c *ApplyCmd) Run(out io.Writer) error {
	nb, err := readNotebook(c.Notebook)
	if err != nil {
		return err
	}
	op, err := readOperation(c.Op)
	if err != nil {
		return err
	}
	next, changes, err := ot.ApplyWithChanges(nb, op)
	if err != nil {
		return err
	}
	if !c.Changes {
		return writeJSON(out, next)
	}
	if changes == nil {
		changes = []change.Change{}
	}
	return writeJSON(out, struct {
		Notebook *notebook.Notebook `json:"notebook"`
		Changes  []change.Change    `json:"changes"`
	}{next, changes})
}

type InvertCmd struct {
	Op string `arg:"" help:"Operation JSON file" type:"existingfile"`
}

func (c *InvertCmd) Run(out io.Writer) error {
	op, err := readOperation(c.Op)
	if err != nil {
		return err
	}
	return writeJSON(out, operation.Wire{Op: ot.Invert(op)})
}

type TransformCmd struct {
	Notebook    string `arg:"" help:"Notebook JSON file, the state both operations were built against" type:"existingfile"`
	Successor   string `arg:"" help:"Operation to transform" type:"existingfile"`
	Predecessor string `arg:"" help:"Operation applied first" type:"existingfile"`
}

// Run 输出变换后的操作；操作被丢弃时输出 null
func (c *TransformCmd) Run(out io.Writer) error {
	nb, err := readNotebook(c.Notebook)
	if err != nil {
		return err
	}
	succ, err := readOperation(c.Successor)
	if err != nil {
		return err
	}
	pred, err := readOperation(c.Predecessor)
	if err != nil {
		return err
	}
	got, err := ot.Transform(ot.StateFromNotebook(nb), succ, pred)
	if err != nil {
		return err
	}
	return writeJSON(out, operation.Wire{Op: got})
}

type RelevantCmd struct {
	Op string `arg:"" help:"Operation JSON file" type:"existingfile"`
}

func (c *RelevantCmd) Run(out io.Writer) error {
	op, err := readOperation(c.Op)
	if err != nil {
		return err
	}
	ids := ot.RelevantCellIDs(op)
	if ids == nil {
		ids = []string{}
	}
	return writeJSON(out, ids)
}

type TokenCmd struct {
	Secret   string        `help:"HMAC secret" env:"NOTEBOOK_AUTH_SECRET" default:"dev-secret"`
	UserID   uint64        `name:"user-id" help:"Subject user id" required:""`
	Username string        `help:"Username claim"`
	TTL      time.Duration `name:"ttl" help:"Token lifetime" default:"24h"`
	Refresh  bool          `help:"Sign a refresh token instead of an access token"`
}

func (c *TokenCmd) Run(out io.Writer) error {
	typ := middleware.TokenAccess
	if c.Refresh {
		typ = middleware.TokenRefresh
	}
	tok, err := middleware.SignToken(c.Secret, c.UserID, c.Username, typ, c.TTL)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(out, tok)
	return err
}

func readNotebook(path string) (*notebook.Notebook, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var nb notebook.Notebook
	if err := json.Unmarshal(b, &nb); err != nil {
		return nil, fmt.Errorf("decode notebook %s: %w", path, err)
	}
	return &nb, nil
}

func readOperation(path string) (operation.Operation, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	op, err := operation.Decode(b)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return op, nil
}

func writeJSON(out io.Writer, v any) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func main() {
	ctx := kong.Parse(&CLI,
		kong.Name("notebookctl"),
		kong.Description("Offline tools for the notebook operation engine"),
		kong.UsageOnError(),
		kong.BindTo(os.Stdout, (*io.Writer)(nil)),
		kong.ConfigureHelp(kong.HelpOptions{
			Compact: true,
		}),
	)
	err := ctx.Run()
	ctx.FatalIfErrorf(err)
}
