package assentctl

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"strings"
	"time"

	"assent/pkg/consent"
	"assent/pkg/domain"
	audit "assent/pkg/platform/audit"
	auditstore "assent/pkg/platform/audit/store"
	"assent/pkg/platform/pseudo"
	"assent/pkg/receipt"
)

// runBanner reports whether the subject still needs the consent banner.
// Prints "show" or "skip", mirroring the decision the SDK records.
func runBanner(ctx context.Context, args []string, out, errOut io.Writer) error {
	fs := flag.NewFlagSet("banner", flag.ContinueOnError)
	fs.SetOutput(errOut)
	var o options
	commonFlags(fs, &o)
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := o.resolve(); err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, o.timeout)
	defer cancel()

	client, trail, err := newClient(ctx, &o, errOut)
	if err != nil {
		return err
	}
	defer teardown(client, trail, errOut)

	show, err := client.ShowConsentBanner(ctx, o.subjectOrDefault())
	if err != nil {
		return err
	}
	if show {
		fmt.Fprintln(out, "show")
	} else {
		fmt.Fprintln(out, "skip")
	}
	return nil
}

// runGet prints the subject's consent record as indented JSON.
func runGet(ctx context.Context, args []string, out, errOut io.Writer) error {
	fs := flag.NewFlagSet("get", flag.ContinueOnError)
	fs.SetOutput(errOut)
	var o options
	commonFlags(fs, &o)
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := o.resolve(); err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, o.timeout)
	defer cancel()

	client, trail, err := newClient(ctx, &o, errOut)
	if err != nil {
		return err
	}
	defer teardown(client, trail, errOut)

	rec, err := client.GetConsent(ctx, o.subjectOrDefault())
	if err != nil {
		return err
	}
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(rec)
}

// runGrant records a consent decision. Purposes not listed are recorded as
// declined; the necessary purpose is always granted.
func runGrant(ctx context.Context, args []string, out, errOut io.Writer) error {
	fs := flag.NewFlagSet("grant", flag.ContinueOnError)
	fs.SetOutput(errOut)
	var o options
	commonFlags(fs, &o)
	var (
		purposes string
		ttl      time.Duration
		meta     metaFlag
	)
	fs.StringVar(&purposes, "purposes", "", "comma-separated purposes to grant; necessary is always granted")
	fs.DurationVar(&ttl, "ttl", 0, "record validity, for example 8760h (0 never expires)")
	fs.Var(&meta, "meta", "metadata entry as key=value, repeatable")
	if err := fs.Parse(args); err != nil {
		return err
	}
	// An explicit -ttl overrides the configured default, including -ttl 0
	// for a record that never expires.
	ttlSet := false
	fs.Visit(func(f *flag.Flag) {
		if f.Name == "ttl" {
			ttlSet = true
		}
	})
	if err := o.resolve(); err != nil {
		return err
	}

	prefs := make(map[domain.Purpose]bool, len(domain.AllPurposes()))
	for _, p := range domain.AllPurposes() {
		prefs[p] = p.IsEssential()
	}
	for _, raw := range strings.Split(purposes, ",") {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}
		p, err := domain.ParsePurpose(raw)
		if err != nil {
			return err
		}
		prefs[p] = true
	}

	ctx, cancel := context.WithTimeout(ctx, o.timeout)
	defer cancel()

	client, trail, err := newClient(ctx, &o, errOut)
	if err != nil {
		return err
	}
	defer teardown(client, trail, errOut)

	setOpts := make([]consent.SetOption, 0, 2)
	if len(meta) > 0 {
		setOpts = append(setOpts, consent.WithMetadata(meta))
	}
	if ttlSet {
		setOpts = append(setOpts, consent.WithTTL(ttl))
	}

	subject := o.subjectOrDefault()
	rec, err := client.SetConsent(ctx, subject, prefs, setOpts...)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "recorded %s for %s\n", rec.ID, subject)
	fmt.Fprintf(out, "granted: %s\n", strings.Join(rec.GrantedPurposes(), ", "))
	if rec.ExpiresAt != nil {
		fmt.Fprintf(out, "expires: %s\n", rec.ExpiresAt.Format(time.RFC3339))
	}
	return nil
}

// runRevoke deletes the subject's consent record.
func runRevoke(ctx context.Context, args []string, out, errOut io.Writer) error {
	fs := flag.NewFlagSet("revoke", flag.ContinueOnError)
	fs.SetOutput(errOut)
	var o options
	commonFlags(fs, &o)
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := o.resolve(); err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, o.timeout)
	defer cancel()

	client, trail, err := newClient(ctx, &o, errOut)
	if err != nil {
		return err
	}
	defer teardown(client, trail, errOut)

	subject := o.subjectOrDefault()
	if err := client.RevokeConsent(ctx, subject); err != nil {
		return err
	}
	fmt.Fprintf(out, "revoked consent for %s\n", subject)
	return nil
}

// runReceipt prints the subject's signed receipt, or with -verify checks a
// token offline and prints its claims.
func runReceipt(ctx context.Context, args []string, out, errOut io.Writer) error {
	fs := flag.NewFlagSet("receipt", flag.ContinueOnError)
	fs.SetOutput(errOut)
	var o options
	commonFlags(fs, &o)
	var verify string
	fs.StringVar(&verify, "verify", "", "verify this receipt token instead of printing the subject's")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := o.resolve(); err != nil {
		return err
	}

	if verify != "" {
		// Verification needs only the signing key, not storage.
		if o.cfg.ReceiptSigningKey == "" {
			return errors.New("receipt verification requires a signing key (ASSENT_RECEIPT_SIGNING_KEY)")
		}
		issuer, err := receipt.NewIssuer(o.cfg.ReceiptSigningKey, o.cfg.ReceiptIssuer)
		if err != nil {
			return err
		}
		claims, err := issuer.Verify(verify)
		if err != nil {
			return err
		}
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(claims)
	}

	ctx, cancel := context.WithTimeout(ctx, o.timeout)
	defer cancel()

	client, trail, err := newClient(ctx, &o, errOut)
	if err != nil {
		return err
	}
	defer teardown(client, trail, errOut)

	rec, err := client.GetConsent(ctx, o.subjectOrDefault())
	if err != nil {
		return err
	}
	if rec.Receipt == "" {
		return errors.New("the record carries no receipt; grant again with a signing key configured")
	}
	fmt.Fprintln(out, rec.Receipt)
	return nil
}

// runAudit prints audit trail events from the configured sink, one JSON
// object per line, most recent first. Only queryable sinks work here: the
// in-memory ring dies with each invocation and kafka is write-only.
func runAudit(ctx context.Context, args []string, out, errOut io.Writer) error {
	fs := flag.NewFlagSet("audit", flag.ContinueOnError)
	fs.SetOutput(errOut)
	var o options
	commonFlags(fs, &o)
	var limit int
	fs.IntVar(&limit, "limit", 20, "maximum events to print")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := o.resolve(); err != nil {
		return err
	}
	if limit <= 0 {
		return errors.New("limit must be a positive integer")
	}
	auditCfg := o.cfg.AuditConfig()
	switch auditCfg.ResolvedDriver() {
	case auditstore.DriverMemory:
		return errors.New("the audit trail needs a persistent sink (ASSENT_AUDIT_PATH, ASSENT_AUDIT_DSN, or the profile's audit settings)")
	case auditstore.DriverKafka:
		return errors.New("the kafka audit sink is write-only; consume the topic instead")
	}

	ctx, cancel := context.WithTimeout(ctx, o.timeout)
	defer cancel()

	sink, err := auditstore.Open(ctx, auditCfg)
	if err != nil {
		return fmt.Errorf("open audit trail: %w", err)
	}
	defer sink.Close()

	var events []audit.Event
	if o.subject != "" {
		// The log stores pseudonyms when a key is configured, so the
		// filter has to go through the same mapping.
		subject := o.subject
		if o.cfg.PseudonymKey != "" {
			p, err := pseudo.New([]byte(o.cfg.PseudonymKey))
			if err != nil {
				return err
			}
			subject = p.Pseudonym(subject)
		}
		events, err = sink.ListBySubject(ctx, subject)
		if err == nil && limit < len(events) {
			events = events[:limit]
		}
	} else {
		events, err = sink.ListRecent(ctx, limit)
	}
	if err != nil {
		return err
	}

	enc := json.NewEncoder(out)
	for _, ev := range events {
		if err := enc.Encode(ev); err != nil {
			return err
		}
	}
	return nil
}
