// Command xrm-client is an example organization service client.
//
// Secret can be provided via:
//   - -pass flag (least secure, visible in process list)
//   - XRM_SECRET environment variable (recommended)
//   - stdin prompt (if neither flag nor env var is set and -user is given)
//
// With no -user the current identity is used (Windows logon session, or the
// Kerberos credential cache elsewhere).
//
// Usage:
//
//	xrm-client -endpoint <url> [-user <principal>] -op <operation> [options]
//
// Examples:
//
//	export XRM_SECRET='secret'
//	xrm-client -endpoint https://crm.contoso.com/contoso/XRMServices/2011/Organization.svc \
//	    -user 'CONTOSO\alice' -spn HTTP/crm.contoso.com -op whoami
//
//	xrm-client -config xrm.yaml -op create -entity account -attr name='Fourth Coffee'
//	xrm-client -config xrm.yaml -op retrieve -entity account -id <guid> -columns name,revenue
//	xrm-client -config xrm.yaml -op fetch -fetchxml '<fetch top="5"><entity name="account"/></fetch>'
package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/term"

	"github.com/smnsjas/go-xrm/client"
	xlog "github.com/smnsjas/go-xrm/internal/log"
	"github.com/smnsjas/go-xrm/security"
	"github.com/smnsjas/go-xrm/soap"
)

// attrFlag collects repeated -attr name=value flags.
type attrFlag map[string]string

func (a attrFlag) String() string {
	keys := make([]string, 0, len(a))
	for k := range a {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return strings.Join(keys, ",")
}

func (a attrFlag) Set(v string) error {
	name, value, ok := strings.Cut(v, "=")
	if !ok || name == "" {
		return fmt.Errorf("attribute must be name=value, got %q", v)
	}
	a[name] = value
	return nil
}

func main() {
	attrs := attrFlag{}

	configPath := flag.String("config", "", "YAML configuration file")
	endpoint := flag.String("endpoint", "", "Organization service URL")
	username := flag.String("user", "", `Principal (DOMAIN\user or user@domain); empty for the current identity`)
	password := flag.String("pass", "", "Password (use XRM_SECRET env var instead)")
	spn := flag.String("spn", "", "Service principal name (e.g., HTTP/crm.contoso.com)")
	mechanism := flag.String("mechanism", "", "Security mechanism: auto, ntlm, kerberos, sspi")
	realm := flag.String("realm", "", "Kerberos realm (e.g., CONTOSO.COM)")
	krb5Conf := flag.String("krb5conf", "", "Path to krb5.conf file")
	keytab := flag.String("keytab", "", "Path to Kerberos keytab")
	ccache := flag.String("ccache", "", "Path to Kerberos credential cache (e.g. /tmp/krb5cc_1000)")
	timeout := flag.Duration("timeout", 0, "Operation timeout (default 120s)")
	insecure := flag.Bool("insecure", false, "Skip TLS certificate verification")
	callerID := flag.String("caller", "", "Impersonate the system user with this id")

	op := flag.String("op", "whoami", "Operation: whoami, create, retrieve, fetch, update, delete, associate, disassociate")
	entity := flag.String("entity", "", "Entity logical name")
	id := flag.String("id", "", "Record id")
	columns := flag.String("columns", "", "Comma-separated columns for retrieve (empty = all)")
	fetchXML := flag.String("fetchxml", "", "FetchXML query for -op fetch")
	relationship := flag.String("relationship", "", "Relationship schema name for associate/disassociate")
	related := flag.String("related", "", "Related record as entity:id for associate/disassociate")
	flag.Var(attrs, "attr", "Attribute name=value for create/update (repeatable)")

	logLevel := flag.String("loglevel", "", "Log level: debug, info, warn, error (empty = no logging)")
	logFile := flag.String("logfile", "", "Write logs to this file (rotated at 10MB)")
	flag.Parse()

	logger, closeLog, err := setupLogging(*logLevel, *logFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	defer closeLog()

	cfg := client.DefaultConfig()
	if *configPath != "" {
		if cfg, err = client.LoadConfig(*configPath); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
	}

	// Flags override the file.
	overrideString(&cfg.Endpoint, *endpoint)
	overrideString(&cfg.Principal, *username)
	overrideString(&cfg.TargetName, *spn)
	overrideString(&cfg.Realm, *realm)
	overrideString(&cfg.Krb5ConfPath, *krb5Conf)
	overrideString(&cfg.KeytabPath, *keytab)
	overrideString(&cfg.CCachePath, *ccache)
	overrideString(&cfg.CallerID, *callerID)
	if *mechanism != "" {
		cfg.Mechanism = security.Mechanism(*mechanism)
	}
	if *timeout > 0 {
		cfg.Timeout = *timeout
	}
	if *insecure {
		cfg.InsecureSkipVerify = true
	}
	if cfg.Principal != "" && cfg.Secret == "" && cfg.KeytabPath == "" && cfg.CCachePath == "" {
		cfg.Secret = getPassword(*password)
	}

	c, err := client.New(cfg, client.WithLogger(logger))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		flag.Usage()
		os.Exit(1)
	}
	defer c.Close()

	ctx := context.Background()
	if err := run(ctx, c, *op, request{
		entity:       *entity,
		id:           *id,
		columns:      *columns,
		fetchXML:     *fetchXML,
		relationship: *relationship,
		related:      *related,
		attrs:        attrs,
	}); err != nil {
		fmt.Fprintf(os.Stderr, "Error (%s): %v\n", client.KindOf(err), err)
		if client.IsRetryable(err) {
			fmt.Fprintln(os.Stderr, "The operation may succeed if retried.")
		}
		os.Exit(1)
	}
}

type request struct {
	entity       string
	id           string
	columns      string
	fetchXML     string
	relationship string
	related      string
	attrs        attrFlag
}

func (r request) reference() (soap.EntityReference, error) {
	if r.entity == "" {
		return soap.EntityReference{}, errors.New("-entity is required")
	}
	id, err := uuid.Parse(r.id)
	if err != nil {
		return soap.EntityReference{}, fmt.Errorf("-id: %w", err)
	}
	return soap.EntityReference{LogicalName: r.entity, ID: id}, nil
}

func (r request) relatedReference() (soap.EntityReference, error) {
	name, rawID, ok := strings.Cut(r.related, ":")
	if !ok {
		return soap.EntityReference{}, errors.New("-related must be entity:id")
	}
	id, err := uuid.Parse(rawID)
	if err != nil {
		return soap.EntityReference{}, fmt.Errorf("-related: %w", err)
	}
	return soap.EntityReference{LogicalName: name, ID: id}, nil
}

func run(ctx context.Context, c *client.Client, op string, r request) error {
	switch op {
	case "whoami":
		who, err := c.WhoAmI(ctx)
		if err != nil {
			return err
		}
		fmt.Printf("UserId:         %s\nBusinessUnitId: %s\nOrganizationId: %s\n",
			who.UserID, who.BusinessUnitID, who.OrganizationID)
		return nil

	case "create":
		if r.entity == "" {
			return errors.New("-entity is required")
		}
		id, err := c.Create(ctx, soap.Entity{LogicalName: r.entity, Attributes: parseAttrs(r.attrs)})
		if err != nil {
			return err
		}
		fmt.Println(id)
		return nil

	case "retrieve":
		ref, err := r.reference()
		if err != nil {
			return err
		}
		cols := soap.AllColumns()
		if r.columns != "" {
			cols = soap.NewColumnSet(strings.Split(r.columns, ",")...)
		}
		e, err := c.Retrieve(ctx, ref, cols)
		if err != nil {
			return err
		}
		printEntity(os.Stdout, *e)
		return nil

	case "fetch":
		if r.fetchXML == "" {
			return errors.New("-fetchxml is required")
		}
		coll, err := c.RetrieveMultiple(ctx, soap.FetchExpression{Query: r.fetchXML})
		if err != nil {
			return err
		}
		for _, e := range coll.Entities {
			printEntity(os.Stdout, e)
		}
		fmt.Printf("%d record(s), more: %t\n", len(coll.Entities), coll.MoreRecords)
		return nil

	case "update":
		ref, err := r.reference()
		if err != nil {
			return err
		}
		return c.Update(ctx, soap.Entity{LogicalName: ref.LogicalName, ID: ref.ID, Attributes: parseAttrs(r.attrs)})

	case "delete":
		ref, err := r.reference()
		if err != nil {
			return err
		}
		return c.Delete(ctx, ref)

	case "associate", "disassociate":
		ref, err := r.reference()
		if err != nil {
			return err
		}
		other, err := r.relatedReference()
		if err != nil {
			return err
		}
		rel := soap.Relationship{SchemaName: r.relationship}
		if op == "associate" {
			return c.Associate(ctx, ref, rel, other)
		}
		return c.Disassociate(ctx, ref, rel, other)

	default:
		return fmt.Errorf("unknown operation %q", op)
	}
}

// parseAttrs converts flag values to typed attributes: integers, booleans
// and GUIDs are recognized, anything else is a string.
func parseAttrs(in attrFlag) soap.Parameters {
	out := make(soap.Parameters, len(in))
	for k, v := range in {
		switch {
		case v == "true" || v == "false":
			out[k] = v == "true"
		default:
			if n, err := strconv.Atoi(v); err == nil {
				out[k] = n
			} else if id, err := uuid.Parse(v); err == nil {
				out[k] = id
			} else {
				out[k] = v
			}
		}
	}
	return out
}

func printEntity(w io.Writer, e soap.Entity) {
	fmt.Fprintf(w, "%s %s\n", e.LogicalName, e.ID)
	keys := make([]string, 0, len(e.Attributes))
	for k := range e.Attributes {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(w, "  %s: %v\n", k, e.Attributes[k])
	}
}

func overrideString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

// setupLogging builds a redacting logger. Without a level, logging is off.
func setupLogging(level, file string) (*slog.Logger, func(), error) {
	if level == "" {
		return slog.New(slog.NewTextHandler(io.Discard, nil)), func() {}, nil
	}

	var lvl slog.Level
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "info":
		lvl = slog.LevelInfo
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		return nil, nil, fmt.Errorf("invalid log level %q: valid values are debug, info, warn, error", level)
	}

	var w io.Writer = os.Stderr
	closeFn := func() {}
	if file != "" {
		rf, err := xlog.NewRotatingFile(file, xlog.DefaultMaxSize, xlog.DefaultMaxBackups)
		if err != nil {
			return nil, nil, err
		}
		w = rf
		closeFn = func() { _ = rf.Close() }
	}

	opts := &slog.HandlerOptions{Level: lvl}
	logger := slog.New(xlog.NewRedactingHandler(slog.NewJSONHandler(w, opts)))
	slog.SetDefault(logger)
	return logger, closeFn, nil
}

// getPassword returns the password from flag, environment, or prompt.
func getPassword(flagValue string) string {
	// 1. Check flag (least secure)
	if flagValue != "" {
		return flagValue
	}

	// 2. Check environment variable
	if env := os.Getenv(client.SecretEnv); env != "" {
		return env
	}

	// 3. Prompt for password (hide input if terminal)
	fmt.Fprint(os.Stderr, "Password: ")

	// Use os.Stdin.Fd() cast to int for cross-platform compatibility
	fd := int(os.Stdin.Fd())
	if term.IsTerminal(fd) {
		b, err := term.ReadPassword(fd)
		fmt.Fprintln(os.Stderr)
		if err != nil {
			return ""
		}
		return string(b)
	}

	// Not a terminal (piped input): read line
	line, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil && line == "" {
		return ""
	}
	return strings.TrimSpace(line)
}

