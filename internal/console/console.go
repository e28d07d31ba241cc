package console

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/benmeehan/relief-tracker/internal/constants"
	"github.com/benmeehan/relief-tracker/internal/dashboard"
	"github.com/benmeehan/relief-tracker/internal/intake"
	"github.com/benmeehan/relief-tracker/internal/models"
	"github.com/benmeehan/relief-tracker/pkg/location"
	"github.com/rs/zerolog"
)

const helpText = `commands:
  role donor|operator                   choose who you are
  code <access code>                    unlock operator actions
  back                                  leave the dashboard and choose again
  list                                  show donations
  advance <id>                          accept or deliver a donation
  donate <item> | <qty> | [donor] | [lat,lng]
  help
  quit`

// Console is a line-oriented stand-in for the donate and dashboard screens.
type Console struct {
	in         *bufio.Scanner
	session    *dashboard.Session
	controller *dashboard.Controller
	intake     *intake.Service // nil when the store is read-only
	logger     zerolog.Logger

	outMu sync.Mutex
	out   io.Writer
}

// New creates a Console reading commands from in.
func New(in io.Reader, out io.Writer, session *dashboard.Session, controller *dashboard.Controller, intakeService *intake.Service, logger zerolog.Logger) *Console {
	return &Console{
		in:         bufio.NewScanner(in),
		out:        out,
		session:    session,
		controller: controller,
		intake:     intakeService,
		logger:     logger,
	}
}

// Run reads commands until quit, end of input or ctx ends.
func (c *Console) Run(ctx context.Context) error {
	c.printf("%s\n", helpText)
	for {
		c.printf("> ")
		if !c.in.Scan() {
			return c.in.Err()
		}
		if c.Execute(ctx, c.in.Text()) {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
	}
}

// Execute runs one command line and reports whether the console should exit.
func (c *Console) Execute(ctx context.Context, line string) bool {
	cmd, arg, _ := strings.Cut(strings.TrimSpace(line), " ")
	arg = strings.TrimSpace(arg)

	switch strings.ToLower(cmd) {
	case "":
	case "help":
		c.printf("%s\n", helpText)
	case "quit", "exit":
		return true
	case "role":
		c.selectRole(arg)
	case "code":
		c.authenticate(arg)
	case "back":
		c.session.Leave()
		c.printf("Choose a role to continue.\n")
	case "list":
		c.list()
	case "advance":
		c.advance(arg)
	case "donate":
		c.donate(ctx, arg)
	default:
		c.printf("Unknown command %q, type help.\n", cmd)
	}
	return false
}

func (c *Console) selectRole(arg string) {
	role, err := dashboard.ParseRole(strings.ToLower(arg))
	if err != nil {
		c.printf("%v\n", err)
		return
	}
	if err := c.session.SelectRole(role); err != nil {
		c.printf("Already signed in as %s. Use back first.\n", c.session.Role())
		return
	}
	if role == dashboard.RoleOperator {
		c.printf("Enter the access code with: code <access code>\n")
		return
	}
	c.printf("Signed in as donor.\n")
}

func (c *Console) authenticate(code string) {
	if err := c.session.Authenticate(code); err != nil {
		if c.session.Role() != dashboard.RoleOperator {
			c.printf("Select the operator role first.\n")
			return
		}
		c.printf("Access Denied: %s\n", constants.MessageAccessDenied)
		return
	}
	c.printf("Operator access granted.\n")
}

func (c *Console) list() {
	n := 0
	for e := range c.controller.RenderList() {
		n++
		c.printf("%s  %s x%d  by %s  [%s %s]  %s", e.ID, e.ItemName, e.Quantity, e.Donor, e.Status, e.StatusColor, e.Location)
		if e.Action != "" {
			c.printf("  -> %s", e.Action)
		}
		c.printf("\n")
	}
	if n == 0 {
		c.printf("No donations yet.\n")
	}
}

func (c *Console) advance(id string) {
	if id == "" {
		c.printf("usage: advance <id>\n")
		return
	}
	c.controller.InvokeTransitionAsync(id, func(o dashboard.Outcome) {
		if o.Err != nil {
			c.printf("\nError: %s\n", o.Message)
			return
		}
		c.printf("\nSuccess: %s\n", o.Message)
	})
}

func (c *Console) donate(ctx context.Context, arg string) {
	if c.intake == nil {
		c.printf("Error: %s\n", constants.MessageDonationFailed)
		return
	}

	fields := strings.Split(arg, "|")
	for len(fields) < 4 {
		fields = append(fields, "")
	}
	form := intake.Form{
		ItemName:  fields[0],
		Quantity:  fields[1],
		DonorName: fields[2],
		Location:  fields[3],
	}

	result, err := c.intake.Submit(ctx, form)
	var verr *models.ValidationError
	switch {
	case errors.As(err, &verr):
		c.printf("Error: %s\n", verr.Error())
		return
	case err != nil:
		c.printf("Error: %s\n", constants.MessageDonationFailed)
		return
	}

	if errors.Is(result.LocationErr, location.ErrPermissionDenied) {
		c.printf("Permission Denied: %s\n", constants.MessageLocationDenied)
	}
	c.printf("Success: %s (%s)\n", constants.MessageDonationSent, result.ID)
}

func (c *Console) printf(format string, args ...any) {
	c.outMu.Lock()
	defer c.outMu.Unlock()
	fmt.Fprintf(c.out, format, args...)
}
