// Package eureka registers the service with a Eureka registry and keeps the
// lease alive with scheduled heartbeats.
package eureka

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-co-op/gocron/v2"
)

const (
	defaultHeartbeatInterval = 30 * time.Second
	requestTimeout           = 10 * time.Second
	leaseDurationFactor      = 3
)

// ErrNotRegistered is returned by a heartbeat the registry rejects because
// it no longer knows the instance.
var ErrNotRegistered = errors.New("instance not registered")

type Config struct {
	Enabled           bool
	ServiceURL        string
	AppName           string
	InstanceHost      string
	InstanceIP        string
	Port              int
	HeartbeatInterval time.Duration
}

// Registrar owns one instance registration.
type Registrar struct {
	cfg        Config
	client     *http.Client
	instanceID string
	host       string
	ip         string

	mu        sync.Mutex
	scheduler gocron.Scheduler
}

type Option func(*Registrar)

// WithHTTPClient replaces the default client used for registry calls.
func WithHTTPClient(c *http.Client) Option {
	return func(r *Registrar) {
		r.client = c
	}
}

func New(cfg Config, opts ...Option) *Registrar {
	if cfg.HeartbeatInterval <= 0 {
		cfg.HeartbeatInterval = defaultHeartbeatInterval
	}
	cfg.ServiceURL = strings.TrimRight(cfg.ServiceURL, "/")
	cfg.AppName = strings.ToUpper(cfg.AppName)

	ip := cfg.InstanceIP
	if ip == "" || ip == "0.0.0.0" {
		ip = outboundIP()
	}
	host := cfg.InstanceHost
	if host == "" {
		host = ip
	}

	r := &Registrar{
		cfg:        cfg,
		client:     &http.Client{Timeout: requestTimeout},
		instanceID: fmt.Sprintf("%s:%s:%d", host, strings.ToLower(cfg.AppName), cfg.Port),
		host:       host,
		ip:         ip,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *Registrar) InstanceID() string {
	return r.instanceID
}

// Start registers the instance and schedules heartbeats. A disabled or
// unconfigured registrar logs and returns nil.
func (r *Registrar) Start(ctx context.Context) error {
	if !r.cfg.Enabled {
		slog.Info("[Eureka] Registration disabled via configuration")
		return nil
	}
	if r.cfg.ServiceURL == "" {
		slog.Warn("[Eureka] Registration skipped: service URL not configured")
		return nil
	}

	if err := r.register(ctx); err != nil {
		return err
	}

	s, err := gocron.NewScheduler()
	if err != nil {
		return fmt.Errorf("failed to create heartbeat scheduler: %w", err)
	}
	_, err = s.NewJob(
		gocron.DurationJob(r.cfg.HeartbeatInterval),
		gocron.NewTask(r.beat, ctx),
		gocron.WithName("eureka-heartbeat"),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		_ = s.Shutdown()
		return fmt.Errorf("failed to schedule heartbeat: %w", err)
	}
	s.Start()

	r.mu.Lock()
	r.scheduler = s
	r.mu.Unlock()

	slog.Info("[Eureka] Registered service instance",
		"instance_id", r.instanceID,
		"heartbeat_interval", r.cfg.HeartbeatInterval,
	)
	return nil
}

// Stop cancels heartbeats and removes the instance from the registry.
func (r *Registrar) Stop(ctx context.Context) error {
	r.mu.Lock()
	s := r.scheduler
	r.scheduler = nil
	r.mu.Unlock()

	if s == nil {
		return nil
	}
	if err := s.Shutdown(); err != nil {
		slog.Warn("[Eureka] Heartbeat scheduler shutdown failed", "error", err)
	}

	slog.Info("[Eureka] Deregistering service instance", "instance_id", r.instanceID)
	resp, err := r.do(ctx, http.MethodDelete, r.instanceURL(), nil)
	if err != nil {
		return fmt.Errorf("failed to deregister: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusNotFound {
		return fmt.Errorf("deregistration failed with status: %d", resp.StatusCode)
	}
	return nil
}

// Heartbeat renews the lease once.
func (r *Registrar) Heartbeat(ctx context.Context) error {
	resp, err := r.do(ctx, http.MethodPut, r.instanceURL(), nil)
	if err != nil {
		return fmt.Errorf("failed to send heartbeat: %w", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		return nil
	case http.StatusNotFound:
		return ErrNotRegistered
	default:
		return fmt.Errorf("heartbeat failed with status: %d", resp.StatusCode)
	}
}

// beat is the scheduled task. A registry that forgot the instance, e.g.
// after a restart, gets a fresh registration.
func (r *Registrar) beat(ctx context.Context) {
	err := r.Heartbeat(ctx)
	if errors.Is(err, ErrNotRegistered) {
		slog.Warn("[Eureka] Registry lost instance, re-registering", "instance_id", r.instanceID)
		err = r.register(ctx)
	}
	if err != nil {
		slog.Error("[Eureka] Heartbeat failed", "instance_id", r.instanceID, "error", err)
		return
	}
	slog.Debug("[Eureka] Heartbeat sent", "instance_id", r.instanceID)
}

func (r *Registrar) register(ctx context.Context) error {
	body, err := json.Marshal(r.registration())
	if err != nil {
		return fmt.Errorf("failed to marshal registration payload: %w", err)
	}

	resp, err := r.do(ctx, http.MethodPost, r.cfg.ServiceURL+"/apps/"+r.cfg.AppName, body)
	if err != nil {
		return fmt.Errorf("failed to register with eureka: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusNoContent && resp.StatusCode != http.StatusOK {
		return fmt.Errorf("eureka registration failed with status: %d", resp.StatusCode)
	}
	return nil
}

func (r *Registrar) do(ctx context.Context, method, url string, body []byte) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, url, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return r.client.Do(req)
}

func (r *Registrar) instanceURL() string {
	return r.cfg.ServiceURL + "/apps/" + r.cfg.AppName + "/" + r.instanceID
}

type instanceEnvelope struct {
	Instance instanceInfo `json:"instance"`
}

type instanceInfo struct {
	InstanceID       string            `json:"instanceId"`
	HostName         string            `json:"hostName"`
	App              string            `json:"app"`
	IPAddr           string            `json:"ipAddr"`
	Status           string            `json:"status"`
	Port             portInfo          `json:"port"`
	HealthCheckURL   string            `json:"healthCheckUrl"`
	StatusPageURL    string            `json:"statusPageUrl"`
	HomePageURL      string            `json:"homePageUrl"`
	VIPAddress       string            `json:"vipAddress"`
	SecureVIPAddress string            `json:"secureVipAddress"`
	LeaseInfo        leaseInfo         `json:"leaseInfo"`
	Metadata         map[string]string `json:"metadata"`
	DataCenterInfo   dataCenterInfo    `json:"dataCenterInfo"`
}

type portInfo struct {
	Port    string `json:"$"`
	Enabled string `json:"@enabled"`
}

type leaseInfo struct {
	RenewalIntervalInSecs int `json:"renewalIntervalInSecs"`
	DurationInSecs        int `json:"durationInSecs"`
}

type dataCenterInfo struct {
	Class string `json:"@class"`
	Name  string `json:"name"`
}

func (r *Registrar) registration() instanceEnvelope {
	port := strconv.Itoa(r.cfg.Port)
	base := "http://" + net.JoinHostPort(r.host, port)
	renewal := int(r.cfg.HeartbeatInterval / time.Second)
	if renewal < 1 {
		renewal = 1
	}
	vip := strings.ToLower(r.cfg.AppName)

	return instanceEnvelope{Instance: instanceInfo{
		InstanceID:       r.instanceID,
		HostName:         r.host,
		App:              r.cfg.AppName,
		IPAddr:           r.ip,
		Status:           "UP",
		Port:             portInfo{Port: port, Enabled: "true"},
		HealthCheckURL:   base + "/health",
		StatusPageURL:    base + "/health",
		HomePageURL:      base + "/",
		VIPAddress:       vip,
		SecureVIPAddress: vip,
		LeaseInfo: leaseInfo{
			RenewalIntervalInSecs: renewal,
			DurationInSecs:        renewal * leaseDurationFactor,
		},
		Metadata: map[string]string{"management.port": port},
		DataCenterInfo: dataCenterInfo{
			Class: "com.netflix.appinfo.InstanceInfo$DefaultDataCenterInfo",
			Name:  "MyOwn",
		},
	}}
}

// outboundIP picks the address of the interface used for outbound traffic.
// Dialing UDP sends no packets.
func outboundIP() string {
	conn, err := net.Dial("udp", "8.8.8.8:80")
	if err != nil {
		slog.Warn("[Eureka] Could not detect outbound IP, using loopback", "error", err)
		return "127.0.0.1"
	}
	defer conn.Close()

	if addr, ok := conn.LocalAddr().(*net.UDPAddr); ok {
		return addr.IP.String()
	}
	return "127.0.0.1"
}
