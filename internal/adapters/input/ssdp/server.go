package ssdp

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"strings"
)

const multicastAddr = "239.255.255.250:1900"

// Server answers M-SEARCH requests so Hue clients find the bridge.
type Server struct {
	ip     string
	port   int
	logger *slog.Logger
}

func NewServer(ip string, port int, logger *slog.Logger) *Server {
	if port == 0 {
		port = 80
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{ip: ip, port: port, logger: logger}
}

// Run listens on the SSDP multicast group until ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	addr, err := net.ResolveUDPAddr("udp4", multicastAddr)
	if err != nil {
		return err
	}

	conn, err := net.ListenMulticastUDP("udp4", nil, addr)
	if err != nil {
		return err
	}
	go func() {
		<-ctx.Done()
		conn.Close()
	}()

	s.logger.Info("SSDP responder listening", "addr", multicastAddr, "location", s.location())
	buf := make([]byte, 1024)
	for {
		n, src, err := conn.ReadFromUDP(buf)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			continue
		}

		if ShouldRespond(string(buf[:n])) {
			s.respond(src)
		}
	}
}

// ShouldRespond reports whether msg is a search the bridge answers.
// Echo Dot 3 often searches for urn:schemas-upnp-org:device:basic:1 or upnp:rootdevice
func ShouldRespond(msg string) bool {
	if !strings.Contains(msg, "M-SEARCH") {
		return false
	}
	msg = strings.ToLower(msg)
	return strings.Contains(msg, "urn:schemas-upnp-org:device:basic:1") ||
		strings.Contains(msg, "upnp:rootdevice") ||
		strings.Contains(msg, "ssdp:all")
}

func (s *Server) location() string {
	return fmt.Sprintf("http://%s:%d/description.xml", s.ip, s.port)
}

// Response is the unicast reply to a matching M-SEARCH.
func (s *Server) Response() string {
	return "HTTP/1.1 200 OK\r\n" +
		"CACHE-CONTROL: max-age=100\r\n" +
		"EXT:\r\n" +
		"LOCATION: " + s.location() + "\r\n" +
		"SERVER: FreeRTOS/6.0.5, UPnP/1.1, IpBridge/1.17.0\r\n" +
		"hue-bridgeid: 001788FFFE102201\r\n" +
		"ST: urn:schemas-upnp-org:device:basic:1\r\n" +
		"USN: uuid:2f402f80-da50-11e1-9b23-001788102201::urn:schemas-upnp-org:device:basic:1\r\n\r\n"
}

func (s *Server) respond(dest *net.UDPAddr) {
	conn, err := net.DialUDP("udp4", nil, dest)
	if err != nil {
		s.logger.Debug("SSDP reply failed", "to", dest, "error", err)
		return
	}
	defer conn.Close()

	if _, err := conn.Write([]byte(s.Response())); err != nil {
		s.logger.Debug("SSDP reply failed", "to", dest, "error", err)
	}
}
