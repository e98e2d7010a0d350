package config

import (
	"fmt"
	"time"

	"grimm.is/zonefwd/internal/brand"
	"grimm.is/zonefwd/internal/logging"
	"grimm.is/zonefwd/internal/model"
)

// Config is a loaded configuration.
type Config struct {
	Daemon Daemon
	Model  *model.Model
}

// Daemon holds process settings.
type Daemon struct {
	Socket             string
	PollInterval       time.Duration
	LogLevel           string
	MetricsListen      string
	AuditDB            string
	AuditRetentionDays int
	Netns              string
}

// DefaultDaemon returns the settings used when no daemon block is given.
func DefaultDaemon() Daemon {
	return Daemon{
		Socket:             brand.GetSocketPath(),
		PollInterval:       time.Second,
		LogLevel:           "info",
		AuditDB:            brand.GetAuditDBPath(),
		AuditRetentionDays: 30,
	}
}

// HCL block schemas.

type daemonBlock struct {
	Socket             string  `hcl:"socket,optional"`
	PollInterval       string  `hcl:"poll_interval,optional"`
	LogLevel           string  `hcl:"log_level,optional"`
	MetricsListen      string  `hcl:"metrics_listen,optional"`
	AuditDB            *string `hcl:"audit_db,optional"`
	AuditRetentionDays *int    `hcl:"audit_retention_days,optional"`
	Netns              string  `hcl:"netns,optional"`
}

type defaultsBlock struct {
	Input       string `hcl:"input,optional"`
	Output      string `hcl:"output,optional"`
	Forward     string `hcl:"forward,optional"`
	SynFlood    *bool  `hcl:"syn_flood,optional"`
	SynRate     *int   `hcl:"syn_rate,optional"`
	SynBurst    *int   `hcl:"syn_burst,optional"`
	DropInvalid *bool  `hcl:"drop_invalid,optional"`
}

type networkBlock struct {
	Name   string `hcl:"name,label"`
	Ifname string `hcl:"ifname,optional"`
	Alias  bool   `hcl:"alias,optional"`
}

type zoneBlock struct {
	Name     string    `hcl:"name,label"`
	Networks *[]string `hcl:"networks,optional"`
	Input    string    `hcl:"input,optional"`
	Output   string    `hcl:"output,optional"`
	Forward  string    `hcl:"forward,optional"`
	Masq     bool      `hcl:"masq,optional"`
	MTUFix   bool      `hcl:"mtu_fix,optional"`
}

type forwardingBlock struct {
	Src    string `hcl:"src"`
	Dest   string `hcl:"dest"`
	MTUFix bool   `hcl:"mtu_fix,optional"`
	Masq   bool   `hcl:"masq,optional"`
}

type redirectBlock struct {
	Src      string `hcl:"src"`
	Proto    string `hcl:"proto,optional"`
	SrcIP    string `hcl:"src_ip,optional"`
	SrcMAC   string `hcl:"src_mac,optional"`
	SrcPort  string `hcl:"src_port,optional"`
	SrcDPort string `hcl:"src_dport,optional"`
	DestIP   string `hcl:"dest_ip"`
	DestPort string `hcl:"dest_port,optional"`
}

type ruleBlock struct {
	Src      string `hcl:"src"`
	Dest     string `hcl:"dest,optional"`
	Proto    string `hcl:"proto,optional"`
	SrcIP    string `hcl:"src_ip,optional"`
	DestIP   string `hcl:"dest_ip,optional"`
	SrcMAC   string `hcl:"src_mac,optional"`
	SrcPort  string `hcl:"src_port,optional"`
	DestPort string `hcl:"dest_port,optional"`
	ICMPType string `hcl:"icmp_type,optional"`
	Target   string `hcl:"target,optional"`
}

type includeBlock struct {
	Path string `hcl:"path,label"`
}

func (d *daemonBlock) apply(out *Daemon) ValidationErrors {
	var errs ValidationErrors
	if d.Socket != "" {
		out.Socket = d.Socket
	}
	if d.PollInterval != "" {
		iv, err := time.ParseDuration(d.PollInterval)
		switch {
		case err != nil:
			errs = append(errs, ValidationError{Field: "daemon.poll_interval", Message: err.Error()})
		case iv <= 0:
			errs = append(errs, ValidationError{Field: "daemon.poll_interval", Message: fmt.Sprintf("must be positive, got %s", iv)})
		default:
			out.PollInterval = iv
		}
	}
	if d.LogLevel != "" {
		if _, err := logging.ParseLevel(d.LogLevel); err != nil {
			errs = append(errs, ValidationError{Field: "daemon.log_level", Message: err.Error()})
		} else {
			out.LogLevel = d.LogLevel
		}
	}
	out.MetricsListen = d.MetricsListen
	if d.AuditDB != nil {
		out.AuditDB = *d.AuditDB
	}
	if d.AuditRetentionDays != nil {
		if *d.AuditRetentionDays < 0 {
			errs = append(errs, ValidationError{Field: "daemon.audit_retention_days", Message: "must not be negative"})
		} else {
			out.AuditRetentionDays = *d.AuditRetentionDays
		}
	}
	out.Netns = d.Netns
	return errs
}
