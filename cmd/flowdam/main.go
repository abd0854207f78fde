/*
 * Flowdam - An OpenFlow Proxy
 *
 * Copyright (C) 2015 Samjung Data Service, Inc. All rights reserved.
 * Kitae Kim <superkkt@sds.co.kr>
 *
 * This program is free software; you can redistribute it and/or modify
 * it under the terms of the GNU General Public License as published by
 * the Free Software Foundation; either version 2 of the License, or
 * any later version.
 *
 * This program is distributed in the hope that it will be useful,
 * but WITHOUT ANY WARRANTY; without even the implied warranty of
 * MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
 * GNU General Public License for more details.
 *
 * You should have received a copy of the GNU General Public License along
 * with this program; if not, write to the Free Software Foundation, Inc.,
 * 51 Franklin Street, Fifth Floor, Boston, MA 02110-1301 USA.
 */


package main

import (
	"context"
	"flag"
	"fmt"
	"net"
	"os"
	"os/signal"
	"runtime"
	"strings"
	"syscall"
	"time"

	"github.com/superkkt/flowdam"
	"github.com/superkkt/flowdam/api"
	"github.com/superkkt/flowdam/log"
	"github.com/superkkt/flowdam/northbound"
	"github.com/superkkt/flowdam/proxy"

	"github.com/fsnotify/fsnotify"
	"github.com/op/go-logging"
	"github.com/pkg/errors"
	"github.com/spf13/viper"
)

const (
	programName     = "flowdam"
	defaultLogLevel = logging.INFO
	// Makes a broken connection will be disconnected within 45 seconds.
	// http://felixge.de/2014/08/26/tcp-keepalive-with-golang.html
	keepAlivePeriod = 5 * time.Second
)

var (
	logger            = logging.MustGetLogger("main")
	loggerLeveled     logging.LeveledBackend
	showVersion       = flag.Bool("version", false, "Show program version and exit")
	defaultConfigFile = flag.String("config", fmt.Sprintf("/usr/local/etc/%v.yaml", programName), "absolute path of the configuration file")
)

func main() {
	runtime.GOMAXPROCS(runtime.NumCPU())
	flag.Parse()
	if *showVersion {
		fmt.Printf("Version: %v\n", flowdam.Version)
		os.Exit(0)
	}

	initConfig()
	initLog()

	manager, err := createAppManager()
	if err != nil {
		logger.Fatalf("failed to create application manager: %v", err)
	}
	p := proxy.New(getProxyConfig(), manager.Handler(proxy.Upstream), manager.Handler(proxy.Downstream))
	p.SetEventListener(eventLogger{})
	watchConfig(p)

	ctx, cancel := context.WithCancel(context.Background())
	initAPIServer(p, manager)
	initSignalHandler(p, manager, cancel)

	listen(ctx, viper.GetInt("default.port"), p)
}

func initConfig() {
	viper.SetConfigFile(*defaultConfigFile)
	viper.SetDefault("default.dial_timeout_ms", 5000)
	viper.SetDefault("default.pair_timeout_ms", int(proxy.DefaultPairTimeout/time.Millisecond))
	viper.SetDefault("default.queue_size", proxy.DefaultQueueSize)
	viper.SetDefault("default.write_timeout_ms", 10000)
	viper.SetDefault("log.driver", "stderr")
	viper.SetDefault("log.level", "info")
	// Read the config file.
	if err := viper.ReadInConfig(); err != nil {
		logger.Fatalf("failed to read the config file: %v", err)
	}
	if err := validateConfig(); err != nil {
		logger.Fatalf("failed to validate the configuration: %v", err)
	}
}

// watchConfig re-reads the config file whenever it changes. Only the log level
// and the idle thresholds of new sessions are applied at runtime.
func watchConfig(p *proxy.Proxy) {
	viper.OnConfigChange(func(e fsnotify.Event) {
		// Ignore the WRITE operation to avoid reading empty config.
		if e.Op != fsnotify.Write {
			return
		}
		if err := validateConfig(); err != nil {
			logger.Errorf("ignored the changed configuration: %v", err)
			return
		}

		if loggerLeveled != nil {
			// Set log level for all modules
			loggerLeveled.SetLevel(getLogLevel(), "")
		}
		p.SetIdleThresholds(getIdleThresholds())
	})
	viper.WatchConfig()
}

func validateConfig() error {
	if port := viper.GetInt("default.port"); port <= 0 || port > 0xFFFF {
		return errors.New("invalid default.port")
	}
	if _, _, err := net.SplitHostPort(viper.GetString("default.controller")); err != nil {
		return errors.Wrap(err, "invalid default.controller")
	}
	for _, key := range []string{"default.dial_timeout_ms", "default.pair_timeout_ms", "default.queue_size", "default.write_timeout_ms", "idle.read_ms", "idle.write_ms"} {
		if viper.GetInt(key) < 0 {
			return fmt.Errorf("invalid %v", key)
		}
	}
	if port := viper.GetInt("rest.port"); port < 0 || port > 0xFFFF {
		return errors.New("invalid rest.port")
	}
	if viper.GetBool("rest.tls") == true {
		if len(viper.GetString("rest.cert_file")) == 0 || len(viper.GetString("rest.key_file")) == 0 {
			return errors.New("rest.cert_file and rest.key_file are required for rest.tls")
		}
	}

	return nil
}

func milliseconds(key string) time.Duration {
	return time.Duration(viper.GetInt(key)) * time.Millisecond
}

func getIdleThresholds() proxy.IdleThresholds {
	return proxy.IdleThresholds{
		Read:  milliseconds("idle.read_ms"),
		Write: milliseconds("idle.write_ms"),
	}
}

func getProxyConfig() proxy.Config {
	return proxy.Config{
		Idle:         getIdleThresholds(),
		PairTimeout:  milliseconds("default.pair_timeout_ms"),
		QueueSize:    viper.GetInt("default.queue_size"),
		WriteTimeout: milliseconds("default.write_timeout_ms"),
	}
}

func initLog() {
	backend, err := log.NewBackend(viper.GetString("log.driver"), programName, os.Stderr)
	if err != nil {
		logger.Fatalf("failed to init log: %v", err)
	}

	loggerLeveled = logging.AddModuleLevel(backend)
	// Set log level for all modules
	loggerLeveled.SetLevel(getLogLevel(), "")
	logging.SetBackend(loggerLeveled)
}

func getLogLevel() logging.Level {
	level, ok := log.ParseLevel(viper.GetString("log.level"), defaultLogLevel)
	if !ok {
		logger.Errorf("invalid log.level=%v, defaulting to %v..", viper.GetString("log.level"), defaultLogLevel)
	}

	return level
}

func createAppManager() (*northbound.Manager, error) {
	manager := northbound.NewManager()

	for _, dir := range []proxy.Direction{proxy.Upstream, proxy.Downstream} {
		for _, v := range parseApplications(viper.GetString(fmt.Sprintf("%v.handlers", dir))) {
			if err := manager.Enable(dir, v); err != nil {
				return nil, errors.Wrap(err, fmt.Sprintf("enabling %v for %v", v, dir))
			}
		}
	}

	return manager, nil
}

func parseApplications(s string) []string {
	var apps []string
	// Remove spaces, and then split it using comma
	for _, v := range strings.Split(strings.Replace(s, " ", "", -1), ",") {
		if len(v) == 0 {
			continue
		}
		apps = append(apps, v)
	}

	return apps
}

func initAPIServer(p *proxy.Proxy, manager *northbound.Manager) {
	port := viper.GetInt("rest.port")
	if port == 0 {
		logger.Info("REST API is disabled")
		return
	}

	go func() {
		srv := newAPIServer(uint16(port), p, manager)
		if err := srv.Serve(); err != nil {
			logger.Fatalf("failed to run the API server: %v", err)
		}
	}()
}

func newAPIServer(port uint16, p api.Proxy, manager *northbound.Manager) *api.Server {
	srv := &api.Server{Port: port, Proxy: p}
	if viper.GetBool("rest.tls") == true {
		srv.TLS.Cert = viper.GetString("rest.cert_file")
		srv.TLS.Key = viper.GetString("rest.key_file")
	}
	// Latency is only measured by the tap application.
	if manager.Enabled("tap") {
		srv.Tracker = manager.Tracker()
	}

	return srv
}

func initSignalHandler(p *proxy.Proxy, manager *northbound.Manager, cancel context.CancelFunc) {
	go func() {
		c := make(chan os.Signal, 5)
		signal.Notify(c, syscall.SIGTERM, syscall.SIGINT, syscall.SIGHUP)

		// Infinte loop.
		for {
			s := <-c
			if s == syscall.SIGTERM || s == syscall.SIGINT {
				// Graceful shutdown
				logger.Warning("Shutting down...")
				cancel()
				done := make(chan struct{})
				go func() {
					p.Shutdown()
					close(done)
				}()
				// Timeout for cancelation
				select {
				case <-done:
				case <-time.After(5 * time.Second):
					logger.Error("timeout while closing the sessions")
				}
				os.Exit(0)
			} else if s == syscall.SIGHUP {
				fmt.Println("* Proxy status:")
				fmt.Println(p.String())
				fmt.Printf("\n* Manager status:\n")
				fmt.Println(manager.String())
			}
		}
	}()
}

type eventLogger struct{}

func (r eventLogger) OnSessionClosed(e proxy.CloseEvent) {
	switch e.Reason {
	case proxy.ReasonFramingError, proxy.ReasonHandlerError:
		logger.Errorf("abnormal session termination: %v", e)
	case proxy.ReasonIdleTimeout, proxy.ReasonPairTimeout:
		logger.Warningf("%v", e)
	default:
		logger.Debugf("%v", e)
	}
}

type KeepAliver interface {
	SetKeepAlive(keepalive bool) error
	SetKeepAlivePeriod(d time.Duration) error
}

func setKeepAlive(conn net.Conn) {
	v, ok := conn.(KeepAliver)
	if !ok {
		return
	}

	logger.Debug("trying to enable socket keepalive..")
	if err := v.SetKeepAlive(true); err != nil {
		logger.Errorf("failed to enable socket keepalive: %v", err)
		return
	}
	logger.Debug("setting socket keepalive period...")
	v.SetKeepAlivePeriod(keepAlivePeriod)
}

func listen(ctx context.Context, port int, p *proxy.Proxy) {
	listener, err := net.Listen("tcp", fmt.Sprintf(":%v", port))
	if err != nil {
		logger.Errorf("failed to listen on %v port: %v", port, err)
		return
	}
	defer listener.Close()
	logger.Infof("listening for switches on %v port", port)

	// Connection dispatcher.
	f := func(c chan<- net.Conn) {
		for {
			conn, err := listener.Accept()
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				logger.Errorf("failed to accept a new connection: %v", err)
				continue
			}
			logger.Infof("new switch is connected from %v", conn.RemoteAddr())

			// Pass the new connection into the backlog queue.
			c <- conn
		}
	}
	backlog := make(chan net.Conn, 32)
	go f(backlog)

	// Infinite loop
	for {
		select {
		case <-ctx.Done():
			logger.Debug("terminating the main listener loop...")
			return
		case conn := <-backlog:
			logger.Debug("fetching a new connection from the backlog..")
			setKeepAlive(conn)
			go serve(ctx, p, conn)
		}
	}
}

// serve pairs a switch connection with a new connection to the controller. The
// remote address of the switch is the pairing key.
func serve(ctx context.Context, p *proxy.Proxy, conn net.Conn) {
	key := conn.RemoteAddr().String()
	s, err := p.Attach(ctx, key, proxy.RoleSwitch, conn)
	if err != nil {
		logger.Errorf("failed to attach the switch connection (%v): %v", key, err)
		return
	}

	addr := viper.GetString("default.controller")
	dialer := &net.Dialer{Timeout: milliseconds("default.dial_timeout_ms")}
	ctrl, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		logger.Errorf("failed to connect to the controller (%v) for %v: %v", addr, key, err)
		s.Shutdown(proxy.ReasonTransportError, errors.Wrap(err, "dialing the controller"))
		return
	}
	setKeepAlive(ctrl)

	v, err := p.Attach(ctx, key, proxy.RoleController, ctrl)
	if err != nil {
		logger.Errorf("failed to attach the controller connection (%v): %v", key, err)
		s.Shutdown(proxy.ReasonTransportError, errors.Wrap(err, "attaching the controller"))
		return
	}
	if v != s {
		// The switch session has been closed while dialing.
		v.Shutdown(proxy.ReasonLocalShutdown, errors.New("switch connection has gone"))
	}
}
