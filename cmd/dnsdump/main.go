// dnsdump is a simple command-line tool demonstrating the resolver
// package: it resolves a single name against one or more recursive
// nameservers and prints every record found.
//
// Usage:
//
//	go run ./cmd/dnsdump -type A -server 8.8.8.8 example.com
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net"
	"os"
	"strings"
	"time"

	"github.com/andreashaberstroh/godns/internal/wire"
	"github.com/andreashaberstroh/godns/resolver"
)

func main() {
	var (
		recordType = flag.String("type", "A", "record type to query (A, AAAA, NS, CNAME, MX, TXT, PTR, SRV, SOA, HINFO)")
		servers    = flag.String("server", "8.8.8.8", "comma-separated list of recursive nameserver IPs")
		timeout    = flag.Duration("timeout", 5*time.Second, "overall query timeout")
	)
	flag.Parse()

	if flag.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "usage: dnsdump -type A -server 8.8.8.8 <domain>")
		os.Exit(2)
	}
	domain := flag.Arg(0)

	rt, err := parseType(*recordType)
	if err != nil {
		log.Fatalf("dnsdump: %v", err)
	}

	r, err := resolver.New()
	if err != nil {
		log.Fatalf("dnsdump: creating resolver: %v", err)
	}
	defer r.Close()

	for _, s := range strings.Split(*servers, ",") {
		ip := net.ParseIP(strings.TrimSpace(s))
		if ip == nil {
			log.Fatalf("dnsdump: invalid nameserver address %q", s)
		}
		r.AddNameserver(ip)
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	records, err := r.Resolve(ctx, resolver.Question{Domain: domain, Type: rt, Class: resolver.ClassIN})
	if err != nil && len(records) == 0 {
		log.Fatalf("dnsdump: resolving %s: %v", domain, err)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "dnsdump: %v (partial results below)\n", err)
	}

	if len(records) == 0 {
		fmt.Println("no records found")
		return
	}
	for _, rr := range records {
		fmt.Println(describe(rr))
	}
}

func parseType(s string) (resolver.RecordType, error) {
	switch strings.ToUpper(s) {
	case "A":
		return resolver.TypeA, nil
	case "AAAA":
		return resolver.TypeAAAA, nil
	case "NS":
		return resolver.TypeNS, nil
	case "CNAME":
		return resolver.TypeCNAME, nil
	case "SOA":
		return resolver.TypeSOA, nil
	case "PTR":
		return resolver.TypePTR, nil
	case "MX":
		return resolver.TypeMX, nil
	case "TXT":
		return resolver.TypeTXT, nil
	case "HINFO":
		return resolver.TypeHINFO, nil
	case "SRV":
		return resolver.TypeSRV, nil
	default:
		return 0, fmt.Errorf("unsupported record type %q", s)
	}
}

// describe formats a resolved record the way dig's short output does:
// enough to be readable on a terminal, not a full wire dump.
func describe(rr resolver.ResourceRecord) string {
	switch v := rr.(type) {
	case *wire.ARecord:
		return fmt.Sprintf("%s A %s", v.Header.Domain, v.Address)
	case *wire.AAAARecord:
		return fmt.Sprintf("%s AAAA %s", v.Header.Domain, v.Address)
	case *wire.NSRecord:
		return fmt.Sprintf("%s NS %s", v.Header.Domain, v.Nameserver)
	case *wire.CNAMERecord:
		return fmt.Sprintf("%s CNAME %s", v.Header.Domain, v.Canonical)
	case *wire.SOARecord:
		return fmt.Sprintf("%s SOA %s %s %d", v.Header.Domain, v.Master, v.Responsible, v.Serial)
	case *wire.PTRRecord:
		return fmt.Sprintf("%s PTR %s", v.Header.Domain, v.Target)
	case *wire.MXRecord:
		return fmt.Sprintf("%s MX %d %s", v.Header.Domain, v.Preference, v.Exchange)
	case *wire.TXTRecord:
		return fmt.Sprintf("%s TXT %q", v.Header.Domain, v.Text)
	case *wire.HINFORecord:
		return fmt.Sprintf("%s HINFO %q %q", v.Header.Domain, v.CPU, v.OS)
	case *wire.SRVRecord:
		return fmt.Sprintf("%s SRV %d %d %d %s", v.Header.Domain, v.Priority, v.Weight, v.Port, v.Target)
	default:
		return fmt.Sprintf("%s (unrecognized record)", rr.RRHeader().Domain)
	}
}
