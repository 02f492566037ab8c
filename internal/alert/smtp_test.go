package alert_test

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/base64"
	"math/big"
	"net"
	"net/textproto"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/hazz-dev/portwatch/internal/alert"
)

// delivery is one message accepted by fakeSMTP.
type delivery struct {
	authUser string
	authPass string
	authTLS  bool
	from     string
	rcpts    []string
	data     string
}

// fakeSMTP is a minimal submission server: STARTTLS, AUTH PLAIN and a
// single-message DATA exchange.
type fakeSMTP struct {
	ln        net.Listener
	tlsConfig *tls.Config
	starttls  bool

	mu         sync.Mutex
	deliveries []delivery
}

func newFakeSMTP(t *testing.T, starttls bool) *fakeSMTP {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	f := &fakeSMTP{
		ln:        ln,
		tlsConfig: &tls.Config{Certificates: []tls.Certificate{selfSignedCert(t)}},
		starttls:  starttls,
	}
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			go f.serve(conn)
		}
	}()
	t.Cleanup(func() { ln.Close() })
	return f
}

func (f *fakeSMTP) port() int {
	return f.ln.Addr().(*net.TCPAddr).Port
}

func (f *fakeSMTP) snapshot() []delivery {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]delivery(nil), f.deliveries...)
}

func (f *fakeSMTP) serve(conn net.Conn) {
	defer func() { conn.Close() }()
	conn.SetDeadline(time.Now().Add(10 * time.Second))

	tp := textproto.NewConn(conn)
	secure := false
	var d delivery
	tp.PrintfLine("220 fake.local ESMTP")

	for {
		line, err := tp.ReadLine()
		if err != nil {
			return
		}
		verb, arg, _ := strings.Cut(line, " ")
		switch strings.ToUpper(verb) {
		case "EHLO", "HELO":
			tp.PrintfLine("250-fake.local")
			if secure {
				tp.PrintfLine("250 AUTH PLAIN")
			} else if f.starttls {
				tp.PrintfLine("250 STARTTLS")
			} else {
				tp.PrintfLine("250 HELP")
			}
		case "STARTTLS":
			tp.PrintfLine("220 2.0.0 ready to start TLS")
			tlsConn := tls.Server(conn, f.tlsConfig)
			if err := tlsConn.Handshake(); err != nil {
				return
			}
			conn = tlsConn
			tp = textproto.NewConn(conn)
			secure = true
		case "AUTH":
			mech, initial, _ := strings.Cut(arg, " ")
			raw, err := base64.StdEncoding.DecodeString(initial)
			parts := strings.Split(string(raw), "\x00")
			if mech != "PLAIN" || err != nil || len(parts) != 3 {
				tp.PrintfLine("535 5.7.8 authentication failed")
				continue
			}
			d.authUser, d.authPass, d.authTLS = parts[1], parts[2], secure
			tp.PrintfLine("235 2.7.0 authentication successful")
		case "MAIL":
			d.from = arg
			tp.PrintfLine("250 2.1.0 ok")
		case "RCPT":
			d.rcpts = append(d.rcpts, arg)
			tp.PrintfLine("250 2.1.5 ok")
		case "DATA":
			tp.PrintfLine("354 end data with <CR><LF>.<CR><LF>")
			body, err := tp.ReadDotBytes()
			if err != nil {
				return
			}
			d.data = string(body)
			f.mu.Lock()
			f.deliveries = append(f.deliveries, d)
			f.mu.Unlock()
			tp.PrintfLine("250 2.0.0 queued")
		case "QUIT":
			tp.PrintfLine("221 2.0.0 bye")
			return
		default:
			tp.PrintfLine("250 2.0.0 ok")
		}
	}
}

func selfSignedCert(t *testing.T) tls.Certificate {
	t.Helper()
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		t.Fatal(err)
	}
	tmpl := &x509.Certificate{
		SerialNumber: big.NewInt(1),
		Subject:      pkix.Name{CommonName: "127.0.0.1"},
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().Add(time.Hour),
		KeyUsage:     x509.KeyUsageDigitalSignature,
		ExtKeyUsage:  []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
		IPAddresses:  []net.IP{net.ParseIP("127.0.0.1")},
	}
	der, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, &key.PublicKey, key)
	if err != nil {
		t.Fatal(err)
	}
	return tls.Certificate{Certificate: [][]byte{der}, PrivateKey: key}
}

func newTestMailer(t *testing.T, srv *fakeSMTP) *alert.Mailer {
	t.Helper()
	m, err := alert.NewMailer(mailConfig("127.0.0.1", srv.port()), "hunter2", nil)
	if err != nil {
		t.Fatalf("NewMailer: %v", err)
	}
	m.SetTLSConfig(&tls.Config{InsecureSkipVerify: true, MinVersion: tls.VersionTLS12})
	return m
}

func TestMailer_DeliversOverStartTLS(t *testing.T) {
	srv := newFakeSMTP(t, true)
	m := newTestMailer(t, srv)

	if err := m.NotifyDown(context.Background(), db1); err != nil {
		t.Fatalf("NotifyDown: %v", err)
	}

	got := srv.snapshot()
	if len(got) != 1 {
		t.Fatalf("expected 1 delivered message, got %d", len(got))
	}
	d := got[0]
	if !d.authTLS {
		t.Error("credentials must only be sent after STARTTLS")
	}
	if d.authUser != "monitor@example.com" || d.authPass != "hunter2" {
		t.Errorf("unexpected credentials %q/%q", d.authUser, d.authPass)
	}
	if !strings.Contains(d.from, "monitor@example.com") {
		t.Errorf("unexpected MAIL FROM %q", d.from)
	}
	if len(d.rcpts) != 2 {
		t.Errorf("expected 2 recipients, got %v", d.rcpts)
	}
	if !strings.Contains(d.data, "Subject: Port 5432 on Host db1 is down!") {
		t.Errorf("subject missing from message:\n%s", d.data)
	}
	if !strings.Contains(d.data, "Please check your system!") {
		t.Errorf("body missing from message:\n%s", d.data)
	}
}

func TestMailer_DeliversRecovery(t *testing.T) {
	srv := newFakeSMTP(t, true)
	m := newTestMailer(t, srv)

	if err := m.NotifyRecovered(context.Background(), db1); err != nil {
		t.Fatalf("NotifyRecovered: %v", err)
	}
	got := srv.snapshot()
	if len(got) != 1 || !strings.Contains(got[0].data, "Subject: Port 5432 on Host db1 is up!") {
		t.Fatalf("expected one recovery message, got %+v", got)
	}
}

func TestMailer_RefusesServerWithoutStartTLS(t *testing.T) {
	srv := newFakeSMTP(t, false)
	m := newTestMailer(t, srv)

	if err := m.NotifyDown(context.Background(), db1); err == nil {
		t.Fatal("expected error when the server does not offer STARTTLS")
	}
	if n := len(srv.snapshot()); n != 0 {
		t.Errorf("expected no delivery without TLS, got %d", n)
	}
}
