// Command cellarctl talks to a running cellar server: browse the collection,
// add a bottle from a label photo, record one drunk, or ask for a pairing.
package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/joho/godotenv"

	"github.com/your-org/cellar/internal/models"
	"github.com/your-org/cellar/internal/observability"
	"github.com/your-org/cellar/internal/workflow"
	"github.com/your-org/cellar/pkg/client"
)

const usage = `usage: cellarctl [-server URL] [-timeout D] <command> [args]

commands:
  list [-search s] [-style s] [-country s] [-region s] [-drinking-now] [-sort field] [-desc]
  stats
  add [-qty n] <image>
  drink <image>
  pair <food>
  rm [-yes] <id>
`

func main() {
	_ = godotenv.Load()

	defaultServer := os.Getenv("CELLAR_SERVER")
	if defaultServer == "" {
		defaultServer = "http://localhost:5001"
	}

	fs := flag.NewFlagSet("cellarctl", flag.ExitOnError)
	server := fs.String("server", defaultServer, "cellar server base URL")
	timeout := fs.Duration("timeout", 90*time.Second, "per-request timeout; analysis waits on the recognition service")
	logLevel := fs.String("log-level", "warn", "log level")
	fs.Usage = func() { fmt.Fprint(os.Stderr, usage) }
	fs.Parse(os.Args[1:])

	observability.SetupLogger(*logLevel, "text")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a := &app{
		api: client.New(*server, *timeout),
		in:  bufio.NewScanner(os.Stdin),
		out: os.Stdout,
	}
	if err := a.run(ctx, fs.Args()); err != nil {
		if errors.Is(err, errUsage) {
			fmt.Fprint(os.Stderr, usage)
			os.Exit(2)
		}
		slog.Debug("command failed", "error", err)
		fmt.Fprintf(os.Stderr, "cellarctl: %v\n", err)
		os.Exit(1)
	}
}

var errUsage = errors.New("usage")

type app struct {
	api *client.Client
	in  *bufio.Scanner
	out io.Writer
}

func (a *app) run(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return errUsage
	}
	cmd, rest := args[0], args[1:]
	switch cmd {
	case "list", "ls":
		return a.list(ctx, rest)
	case "stats":
		return a.stats(ctx)
	case "add":
		return a.add(ctx, rest)
	case "drink":
		return a.drink(ctx, rest)
	case "pair":
		return a.pair(ctx, rest)
	case "rm", "delete":
		return a.remove(ctx, rest)
	}
	return fmt.Errorf("%w: unknown command %q", errUsage, cmd)
}

func (a *app) list(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("list", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	var q models.WineQuery
	fs.StringVar(&q.Filter.Search, "search", "", "")
	fs.StringVar(&q.Filter.Style, "style", "", "")
	fs.StringVar(&q.Filter.Country, "country", "", "")
	fs.StringVar(&q.Filter.Region, "region", "", "")
	fs.BoolVar(&q.Filter.DrinkingNow, "drinking-now", false, "")
	fs.StringVar(&q.SortBy, "sort", "", "")
	desc := fs.Bool("desc", false, "")
	if err := fs.Parse(args); err != nil {
		return fmt.Errorf("%w: %v", errUsage, err)
	}
	if *desc {
		q.SortOrder = "DESC"
	}

	wines, err := a.api.ListWines(ctx, q)
	if err != nil {
		return err
	}
	if len(wines) == 0 {
		fmt.Fprintln(a.out, "no wines")
		return nil
	}

	tw := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tVINTAGE\tSTYLE\tCOUNTRY\tQTY\tWINDOW")
	for _, w := range wines {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\t%d\t%s\n",
			w.ID, w.Name, optInt(w.Vintage), w.Style, w.Country, w.Quantity, window(w.WineFields))
	}
	return tw.Flush()
}

func (a *app) stats(ctx context.Context) error {
	st, err := a.api.Stats(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "bottles:         %d\n", st.TotalBottles)
	fmt.Fprintf(a.out, "wines:           %d\n", st.TotalWines)
	fmt.Fprintf(a.out, "ready to drink:  %d\n", st.ReadyToDrink)
	fmt.Fprintf(a.out, "needs cellaring: %d\n", st.NeedsCellaring)
	printGroups(a.out, "by country", st.ByCountry)
	printGroups(a.out, "by style", st.ByStyle)
	return nil
}

func printGroups(out io.Writer, title string, groups []models.GroupCount) {
	if len(groups) == 0 {
		return
	}
	fmt.Fprintf(out, "%s:\n", title)
	for _, g := range groups {
		fmt.Fprintf(out, "  %-20s %d\n", g.Value, g.Count)
	}
}

// add runs the add-wine flow against the server, asking on stdin whenever the
// flow needs a decision.
func (a *app) add(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("add", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	qty := fs.Int("qty", 0, "bottles to add")
	if err := fs.Parse(args); err != nil || fs.NArg() != 1 {
		return errUsage
	}
	path := fs.Arg(0)
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read image: %w", err)
	}

	ctl := workflow.NewController(a.api)
	fmt.Fprintf(a.out, "analyzing %s...\n", filepath.Base(path))
	if err := ctl.SubmitImage(ctx, filepath.Base(path), data); err != nil {
		var aerr *workflow.AnalysisError
		if !errors.As(err, &aerr) {
			return err
		}
		fmt.Fprintf(a.out, "could not read the label: %s\nenter the details by hand.\n", aerr.Message)
	}
	if *qty > 0 {
		_ = ctl.EditForm(func(f *models.WineFields) { f.Quantity = *qty })
	}

	for {
		switch ctl.State() {
		case workflow.AwaitingClarification:
			if err := a.clarify(ctx, ctl); err != nil {
				return err
			}
		case workflow.AwaitingDuplicateDecision:
			if err := a.resolveDuplicate(ctx, ctl); err != nil {
				return err
			}
		case workflow.Idle, workflow.ReadyToCommit:
			done, err := a.confirmAndSave(ctx, ctl)
			if err != nil || done {
				return err
			}
		case workflow.Committed:
			w := ctl.Committed()
			fmt.Fprintf(a.out, "saved #%d %s (%d in cellar)\n", w.ID, w.Name, w.Quantity)
			return nil
		default:
			return fmt.Errorf("unexpected state %s", ctl.State())
		}
	}
}

func (a *app) clarify(ctx context.Context, ctl *workflow.Controller) error {
	cand := ctl.Candidate()
	for _, q := range cand.ClarificationQuestions {
		fmt.Fprintf(a.out, "? %s\n", q)
	}
	answer, err := a.ask("style (" + strings.Join(models.KnownStyles, "/") + ")")
	if err != nil {
		return err
	}
	err = ctl.AnswerClarification(ctx, answer)
	var aerr *workflow.AnalysisError
	switch {
	case errors.Is(err, models.ErrValidation):
		fmt.Fprintln(a.out, "a style is required")
		return nil
	case errors.As(err, &aerr):
		fmt.Fprintf(a.out, "re-analysis failed: %s\nenter the details by hand.\n", aerr.Message)
		return ctl.EditForm(func(f *models.WineFields) { f.Style = answer })
	}
	return err
}

func (a *app) resolveDuplicate(ctx context.Context, ctl *workflow.Controller) error {
	cand := ctl.Candidate()
	existing := cand.ExistingWine
	fmt.Fprintf(a.out, "already in the collection: #%d %s %s (%d bottles)\n",
		existing.ID, existing.Name, optInt(existing.Vintage), existing.Quantity)

	choice, err := a.ask("add bottles to it [m] or keep as a new entry [n]")
	if err != nil {
		return err
	}
	if !strings.HasPrefix(strings.ToLower(choice), "m") {
		return ctl.KeepAsNew()
	}

	for {
		answer, err := a.ask(fmt.Sprintf("bottles to add [%d]", ctl.Form().Quantity))
		if err != nil {
			return err
		}
		n := ctl.Form().Quantity
		if answer != "" {
			if n, err = strconv.Atoi(answer); err != nil {
				fmt.Fprintln(a.out, "enter a number")
				continue
			}
		}
		err = ctl.MergeDuplicate(ctx, n)
		if errors.Is(err, workflow.ErrBadQuantity) {
			fmt.Fprintln(a.out, err)
			continue
		}
		return err
	}
}

// confirmAndSave shows the form, lets the owner fix the name and quantity, and
// saves. done is true when the owner abandoned the flow.
func (a *app) confirmAndSave(ctx context.Context, ctl *workflow.Controller) (done bool, err error) {
	f := ctl.Form()
	fmt.Fprintf(a.out, "%s | %s | %s | %s, %s | %s\n",
		orDash(f.Name), orDash(f.Producer), optInt(f.Vintage), orDash(f.Country), orDash(f.Region), orDash(f.Style))

	name, err := a.ask(fmt.Sprintf("name [%s]", f.Name))
	if err != nil {
		return false, err
	}
	qtyAnswer, err := a.ask(fmt.Sprintf("quantity [%d]", f.Quantity))
	if err != nil {
		return false, err
	}
	if err := ctl.EditForm(func(f *models.WineFields) {
		if name != "" {
			f.Name = name
		}
		if n, err := strconv.Atoi(qtyAnswer); err == nil && n >= 0 {
			f.Quantity = n
		}
	}); err != nil {
		return false, err
	}

	ok, err := a.ask("save? [Y/n]")
	if err != nil {
		return false, err
	}
	if strings.HasPrefix(strings.ToLower(ok), "n") {
		fmt.Fprintln(a.out, "nothing saved")
		return true, ctl.Cancel()
	}

	err = ctl.Save(ctx)
	var apiErr *client.APIError
	switch {
	case errors.Is(err, workflow.ErrNameRequired):
		fmt.Fprintln(a.out, "a name is required")
		return false, nil
	case errors.As(err, &apiErr) && apiErr.Status == http.StatusBadRequest:
		fmt.Fprintln(a.out, apiErr.Message)
		return false, nil
	}
	return false, err
}

func (a *app) drink(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return errUsage
	}
	data, err := os.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("read image: %w", err)
	}

	res, err := a.api.Drink(ctx, filepath.Base(args[0]), data)
	var derr *client.DrinkError
	if errors.As(err, &derr) {
		fmt.Fprintln(a.out, derr.Message)
		if derr.Identified != nil {
			fmt.Fprintf(a.out, "label read as: %s %s %s\n",
				derr.Identified.Producer, derr.Identified.Name, optInt(derr.Identified.Vintage))
		}
		return nil
	}
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "%s (%d -> %d)\n", res.Message, res.PreviousQuantity, res.NewQuantity)
	return nil
}

func (a *app) pair(ctx context.Context, args []string) error {
	food := strings.TrimSpace(strings.Join(args, " "))
	if food == "" {
		return errUsage
	}
	res, err := a.api.Pair(ctx, food)
	if err != nil {
		return err
	}
	if res.Error != "" {
		fmt.Fprintln(a.out, res.Error)
		return nil
	}
	if len(res.Suggestions) == 0 {
		fmt.Fprintln(a.out, "nothing in the cellar suits this dish")
	}
	for _, s := range res.Suggestions {
		fmt.Fprintf(a.out, "[%s] #%d %s %s\n    %s\n", s.MatchLevel, s.WineID, s.WineName, optInt(s.Vintage), s.Why)
	}
	if res.Tip != "" {
		fmt.Fprintf(a.out, "tip: %s\n", res.Tip)
	}
	return nil
}

func (a *app) remove(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("rm", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	yes := fs.Bool("yes", false, "skip confirmation")
	if err := fs.Parse(args); err != nil || fs.NArg() != 1 {
		return errUsage
	}
	id, err := strconv.ParseInt(fs.Arg(0), 10, 64)
	if err != nil {
		return fmt.Errorf("%w: invalid wine id %q", errUsage, fs.Arg(0))
	}

	w, err := a.api.GetWine(ctx, id)
	if err != nil {
		return err
	}
	if !*yes {
		answer, err := a.ask(fmt.Sprintf("delete #%d %s (%d bottles)? [y/N]", w.ID, w.Name, w.Quantity))
		if err != nil {
			return err
		}
		if !strings.HasPrefix(strings.ToLower(answer), "y") {
			fmt.Fprintln(a.out, "kept")
			return nil
		}
	}
	if err := a.api.DeleteWine(ctx, id); err != nil {
		return err
	}
	fmt.Fprintf(a.out, "deleted #%d\n", id)
	return nil
}

// ask prints a prompt and returns the trimmed reply. End of input is an error
// so a closed stdin cannot loop forever.
func (a *app) ask(prompt string) (string, error) {
	fmt.Fprintf(a.out, "%s: ", prompt)
	if !a.in.Scan() {
		if err := a.in.Err(); err != nil {
			return "", fmt.Errorf("read input: %w", err)
		}
		return "", io.ErrUnexpectedEOF
	}
	return strings.TrimSpace(a.in.Text()), nil
}

func optInt(v *int) string {
	if v == nil {
		return "NV"
	}
	return strconv.Itoa(*v)
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func window(f models.WineFields) string {
	switch {
	case f.DrinkingWindowStart != nil && f.DrinkingWindowEnd != nil:
		return fmt.Sprintf("%d-%d", *f.DrinkingWindowStart, *f.DrinkingWindowEnd)
	case f.DrinkingWindowStart != nil:
		return fmt.Sprintf("%d-", *f.DrinkingWindowStart)
	case f.DrinkingWindowEnd != nil:
		return fmt.Sprintf("-%d", *f.DrinkingWindowEnd)
	}
	return ""
}
