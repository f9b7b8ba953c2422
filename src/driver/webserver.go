package driver

import (
	"crypto/tls"
	"fmt"
	"io"
	"net"
	"net/http"
	"path/filepath"
	"time"

	"github.com/mosaicnetworks/ledgerdriver/src/config"
	"github.com/mosaicnetworks/ledgerdriver/src/executor"
	"github.com/mosaicnetworks/ledgerdriver/src/future"
	"github.com/mosaicnetworks/ledgerdriver/src/poll"
	"github.com/mosaicnetworks/ledgerdriver/src/process"
	"github.com/mosaicnetworks/ledgerdriver/src/webserver"
	"github.com/sirupsen/logrus"
)

// Timeouts of one web server status probe.
const (
	WebserverConnectTimeout = 5 * time.Second
	WebserverReadTimeout    = 60 * time.Second
)

// CommandWebserver is the ledgerd sub-command running a web server.
const CommandWebserver = "webserver"

// WebserverErrorLogFile receives the stderr of a web server process.
const WebserverErrorLogFile = "web-error.log"

// StartWebserver starts the web server of the node behind handle and waits
// until its status endpoint answers "started". In-process nodes get an
// in-process web server.
func (d *Driver) StartWebserver(handle NodeHandle) *future.Future[*WebserverHandle] {
	if _, ok := handle.(*InProcessHandle); ok {
		return d.startInProcessWebserver(handle)
	}
	return d.startWebserverProcess(handle)
}

func (d *Driver) startInProcessWebserver(handle NodeHandle) *future.Future[*WebserverHandle] {
	conf := handle.Configuration()

	started := onShutdown(d, executor.SubmitFuture(d.exec, func() (*WebserverHandle, error) {
		ws := webserver.New(conf, conf.Logger().WithField("component", "web"))
		if err := ws.Start(); err != nil {
			return nil, err
		}
		return &WebserverHandle{ListenAddress: handle.WebAddress(), server: ws}, nil
	}), (*WebserverHandle).stop)

	return future.FlatMap(started, func(h *WebserverHandle) *future.Future[*WebserverHandle] {
		return future.Map(d.queryWebserver(handle, nil), func(struct{}) (*WebserverHandle, error) {
			return h, nil
		})
	})
}

func (d *Driver) startWebserverProcess(handle NodeHandle) *future.Future[*WebserverHandle] {
	conf := handle.Configuration()

	debugPort := 0
	if d.cfg.IsDebug {
		debugPort = d.cfg.DebugPortAllocation.NextPort()
	}

	spec := process.Spec{
		Path: d.cfg.NodeBinary,
		Args: []string{
			CommandWebserver,
			FlagBaseDirectory + "=" + conf.BaseDirectory,
		},
		Name:              conf.LegalName().CommonName() + " web",
		DebugPort:         debugPort,
		Properties:        d.cfg.SystemProperties,
		PluginDirectories: d.pluginDirectories(conf),
		ErrorLogPath:      filepath.Join(conf.BaseDirectory, config.LogsDir, WebserverErrorLogFile),
		WorkingDirectory:  conf.BaseDirectory,
	}

	processFuture := d.registerProcess(d.launch(spec))

	return future.FlatMap(processFuture, func(p process.Process) *future.Future[*WebserverHandle] {
		return future.Map(d.queryWebserver(handle, p), func(struct{}) (*WebserverHandle, error) {
			return &WebserverHandle{ListenAddress: handle.WebAddress(), Process: p}, nil
		})
	})
}

// queryWebserver polls the status endpoint of the web server of handle until
// it answers "started". It fails if p, when given, exits first.
func (d *Driver) queryWebserver(handle NodeHandle, p process.Process) *future.Future[struct{}] {
	address := handle.WebAddress()

	scheme := "http"
	if handle.Configuration().UseHTTPS {
		scheme = "https"
	}
	url := fmt.Sprintf("%s://%s/api/status", scheme, address)

	client := &http.Client{
		Timeout: WebserverReadTimeout,
		Transport: &http.Transport{
			DialContext: (&net.Dialer{Timeout: WebserverConnectTimeout}).DialContext,
			// development web servers use self-signed certificates
			TLSClientConfig: &tls.Config{InsecureSkipVerify: true},
		},
	}

	return poll.UntilTrue(d.poller, "webserver at "+address, d.cfg.PollInterval, poll.DefaultWarnCount, func() (bool, error) {
		if p != nil && !p.Alive() {
			return false, &poll.ProcessDeathError{Address: address, ExitCode: p.ExitCode()}
		}

		resp, err := client.Get(url)
		if err != nil {
			d.logger.WithError(err).WithField("address", address).Debug("Retrying webserver info")
			return false, nil
		}
		defer resp.Body.Close()

		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return false, nil
		}

		started := resp.StatusCode == http.StatusOK && string(body) == `"`+webserver.StatusStarted+`"`
		if !started {
			d.logger.WithFields(logrus.Fields{
				"address": address,
				"status":  resp.StatusCode,
				"body":    string(body),
			}).Debug("Webserver not started yet")
		}
		return started, nil
	})
}
