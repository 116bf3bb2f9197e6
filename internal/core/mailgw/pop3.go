package mailgw

import (
	"crypto/tls"
	"fmt"
	"io"
	"net"
	"net/textproto"
	"strings"
	"time"

	"github.com/pkg/errors"
)

const pop3DialTimeout = 30 * time.Second

// pop3Client speaks the handful of POP3 commands the gateway needs:
// USER/PASS, STAT, RETR, DELE, QUIT. It is deliberately not a general
// mail client.
type pop3Client struct {
	conn net.Conn
	text *textproto.Conn
}

func dialPOP3(host string, port int, useTLS bool) (*pop3Client, error) {
	addr := fmt.Sprintf("%s:%d", host, port)

	var conn net.Conn
	var err error
	if useTLS {
		dialer := &net.Dialer{Timeout: pop3DialTimeout}
		conn, err = tls.DialWithDialer(dialer, "tcp", addr, &tls.Config{ServerName: host})
	} else {
		conn, err = net.DialTimeout("tcp", addr, pop3DialTimeout)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "cannot connect to %s", addr)
	}

	c := &pop3Client{conn: conn, text: textproto.NewConn(conn)}
	if _, err := c.readOK(); err != nil {
		_ = conn.Close()
		return nil, errors.Wrap(err, "server greeting")
	}
	return c, nil
}

func (c *pop3Client) readOK() (string, error) {
	line, err := c.text.ReadLine()
	if err != nil {
		return "", err
	}
	if !strings.HasPrefix(line, "+OK") {
		return "", errors.Errorf("server said %q", line)
	}
	return strings.TrimSpace(strings.TrimPrefix(line, "+OK")), nil
}

func (c *pop3Client) cmd(format string, args ...any) (string, error) {
	if err := c.text.PrintfLine(format, args...); err != nil {
		return "", err
	}
	return c.readOK()
}

func (c *pop3Client) auth(user, password string) error {
	if _, err := c.cmd("USER %s", user); err != nil {
		return errors.Wrap(err, "USER rejected")
	}
	if _, err := c.cmd("PASS %s", password); err != nil {
		return errors.Wrap(err, "PASS rejected")
	}
	return nil
}

// stat returns the number of messages waiting on the server
func (c *pop3Client) stat() (int, error) {
	resp, err := c.cmd("STAT")
	if err != nil {
		return 0, errors.Wrap(err, "STAT failed")
	}
	var count, size int
	if _, err := fmt.Sscanf(resp, "%d %d", &count, &size); err != nil {
		return 0, errors.Errorf("malformed STAT response %q", resp)
	}
	return count, nil
}

// retr fetches message n (1-based) in full
func (c *pop3Client) retr(n int) ([]byte, error) {
	if _, err := c.cmd("RETR %d", n); err != nil {
		return nil, errors.Wrapf(err, "RETR %d failed", n)
	}
	data, err := io.ReadAll(c.text.DotReader())
	if err != nil {
		return nil, errors.Wrapf(err, "reading message %d", n)
	}
	return data, nil
}

// dele marks message n for deletion on QUIT. Callers invoke this only
// after the message has been retrieved successfully.
func (c *pop3Client) dele(n int) error {
	_, err := c.cmd("DELE %d", n)
	return errors.Wrapf(err, "DELE %d failed", n)
}

func (c *pop3Client) quit() error {
	_, err := c.cmd("QUIT")
	closeErr := c.conn.Close()
	if err != nil {
		return err
	}
	return closeErr
}
