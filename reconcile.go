package ddns

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/go-logr/logr"
)

// DuplicatePolicy decides what happens when a subdomain has several A records.
type DuplicatePolicy int

const (
	// UpdateFirst updates the first A record in listing order and leaves the rest untouched.
	UpdateFirst DuplicatePolicy = iota
	// UpdateAll updates every A record of the subdomain.
	UpdateAll
	// FailOnDuplicates refuses to plan and returns a *MultipleRecordsError.
	FailOnDuplicates
)

func (p DuplicatePolicy) String() string {
	switch p {
	case UpdateFirst:
		return "first"
	case UpdateAll:
		return "all"
	case FailOnDuplicates:
		return "fail"
	}
	return fmt.Sprintf("DuplicatePolicy(%d)", int(p))
}

// ParseDuplicatePolicy is the inverse of DuplicatePolicy.String.
func ParseDuplicatePolicy(s string) (DuplicatePolicy, error) {
	switch strings.ToLower(s) {
	case "first", "":
		return UpdateFirst, nil
	case "all":
		return UpdateAll, nil
	case "fail":
		return FailOnDuplicates, nil
	}
	return 0, fmt.Errorf("unknown duplicate policy %q (want first, all or fail)", s)
}

// PlanOptions tune NewPlan.
type PlanOptions struct {
	Duplicates DuplicatePolicy
	// SkipUnchanged moves records that already hold ip and ttl into Plan.Unchanged.
	SkipUnchanged bool
}

// Plan is the set of writes needed to point every requested subdomain at one IP.
//
// The subdomains of Update and Unchanged never appear in Create,
// and together they cover every requested subdomain.
type Plan struct {
	Update    []Record
	Unchanged []Record
	Create    []string
}

// Empty reports whether the plan has no writes.
func (p Plan) Empty() bool { return len(p.Update) == 0 && len(p.Create) == 0 }

// NewPlan partitions subdomains into records to update and subdomains to create,
// using a single listing of the remote records.
// Only type A records count; records for subdomains that weren't asked for are ignored.
// Duplicate subdomains in the request are collapsed.
func NewPlan(records []Record, subdomains []string, ip string, ttl int, opts PlanOptions) (Plan, error) {
	wanted := make(map[string]bool, len(subdomains))
	var ordered []string
	for _, s := range subdomains {
		if wanted[s] {
			continue
		}
		wanted[s] = true
		ordered = append(ordered, s)
	}

	if opts.Duplicates == FailOnDuplicates {
		counts := map[string]int{}
		for _, r := range records {
			if isA(r) && wanted[r.Subdomain] {
				counts[r.Subdomain]++
			}
		}
		for _, s := range ordered {
			if counts[s] > 1 {
				return Plan{}, &MultipleRecordsError{Domain: domainOf(records), Subdomain: s, Count: counts[s]}
			}
		}
	}

	var plan Plan
	covered := make(map[string]bool, len(ordered))
	for _, r := range records {
		if !isA(r) || !wanted[r.Subdomain] {
			continue
		}
		if covered[r.Subdomain] && opts.Duplicates != UpdateAll {
			continue
		}
		covered[r.Subdomain] = true
		if opts.SkipUnchanged && r.Content == ip && r.TTL == ttl {
			plan.Unchanged = append(plan.Unchanged, r)
			continue
		}
		plan.Update = append(plan.Update, r)
	}

	for _, s := range ordered {
		if !covered[s] {
			plan.Create = append(plan.Create, s)
		}
	}
	return plan, nil
}

func isA(r Record) bool { return strings.EqualFold(r.Type, "A") }

func domainOf(records []Record) string {
	if len(records) == 0 {
		return ""
	}
	return records[0].Domain
}

// Reconcile points every subdomain of the registrar's domain at ip.
//
// Existing A records are updated and missing ones are created, in that order.
// The first failed write stops the reconciliation and is returned;
// writes that already succeeded are not rolled back.
func (u *Updater) Reconcile(ctx context.Context, reg Registrar, subdomains []string, ip string, ttl int) (Plan, error) {
	return u.reconcile(ctx, u.logger, reg, subdomains, ip, ttl)
}

func (u *Updater) reconcile(ctx context.Context, log logr.Logger, reg Registrar, subdomains []string, ip string, ttl int) (Plan, error) {
	domain := reg.Domain()
	log = log.WithValues("domain", domain)

	records, err := reg.ListRecords(ctx)
	if err != nil {
		return Plan{}, fmt.Errorf("error listing records for %s: %w", domain, err)
	}
	log.V(1).Info("found existing records", "count", len(records))

	plan, err := NewPlan(records, subdomains, ip, ttl, u.planOptions)
	if err != nil {
		var mre *MultipleRecordsError
		if errors.As(err, &mre) && mre.Domain == "" {
			mre.Domain = domain
		}
		return Plan{}, err
	}

	for _, r := range plan.Unchanged {
		log.V(1).Info("record already up to date", "subdomain", r.Subdomain, "id", r.ID)
		u.metrics.unchanged(domain)
	}

	for _, r := range plan.Update {
		log.Info("updating record", "subdomain", r.Subdomain, "id", r.ID, "from", r.Content, "to", ip, "ttl", ttl)
		if err := reg.UpdateRecord(ctx, r, ip, ttl); err != nil {
			return plan, fmt.Errorf("error updating %s record %s: %w", fqdn(r.Subdomain, domain), r.ID, err)
		}
		u.metrics.updated(domain)
	}

	for _, s := range plan.Create {
		log.Info("creating record", "subdomain", s, "ip", ip, "ttl", ttl)
		if err := reg.CreateRecord(ctx, s, ip, ttl); err != nil {
			return plan, fmt.Errorf("error creating %s record: %w", fqdn(s, domain), err)
		}
		u.metrics.created(domain)
	}
	return plan, nil
}

func fqdn(subdomain, domain string) string {
	if subdomain == "" || subdomain == "@" {
		return domain
	}
	return subdomain + "." + domain
}
