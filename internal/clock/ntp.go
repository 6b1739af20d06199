// Copyright (C) 2025 Josh Simonot
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with this program.  If not, see <https://www.gnu.org/licenses/>.

package clock

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/beevik/ntp"
)

// NTP queries a single network time server. Timeout bounds the whole
// query, name lookup included.
type NTP struct {
	Host    string
	Timeout time.Duration

	// Dial opens the UDP socket; nil uses a net.Dialer.
	Dial func(ctx context.Context, network, address string) (net.Conn, error)
}

func (n NTP) Time(ctx context.Context) (time.Time, error) {
	timeout := n.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if err := ctx.Err(); err != nil {
		return time.Time{}, err
	}

	dial := n.Dial
	if dial == nil {
		dial = (&net.Dialer{}).DialContext
	}
	opts := ntp.QueryOptions{
		Timeout: timeout,
		Dialer: func(_, remote string) (net.Conn, error) {
			return dial(ctx, "udp", remote)
		},
	}

	type result struct {
		resp *ntp.Response
		err  error
	}
	ch := make(chan result, 1)
	go func() {
		resp, err := ntp.QueryWithOptions(n.Host, opts)
		ch <- result{resp, err}
	}()

	var r result
	select {
	case r = <-ch:
	case <-ctx.Done():
		return time.Time{}, fmt.Errorf("query %s: %w", n.Host, ctx.Err())
	}
	if r.err != nil {
		return time.Time{}, fmt.Errorf("query %s: %w", n.Host, r.err)
	}
	if err := r.resp.Validate(); err != nil {
		return time.Time{}, fmt.Errorf("validate %s: %w", n.Host, err)
	}
	return time.Now().Add(r.resp.ClockOffset), nil
}
