package remote

//
// Copyright (c) 2019 ARM Limited.
//
// SPDX-License-Identifier: MIT
//
// Permission is hereby granted, free of charge, to any person obtaining a copy
// of this software and associated documentation files (the "Software"), to
// deal in the Software without restriction, including without limitation the
// rights to use, copy, modify, merge, publish, distribute, sublicense, and/or
// sell copies of the Software, and to permit persons to whom the Software is
// furnished to do so, subject to the following conditions:
//
// The above copyright notice and this permission notice shall be included in all
// copies or substantial portions of the Software.
//
// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
// IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
// FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
// AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
// LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
// OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
// SOFTWARE.
//

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io/ioutil"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	. "github.com/PelionIoT/partitiondb/coordinator"
	. "github.com/PelionIoT/partitiondb/domain"
	. "github.com/PelionIoT/partitiondb/error"
	. "github.com/PelionIoT/partitiondb/logging"
)

const (
	DefaultClientTimeout       = time.Second * 10
	RECONNECT_WAIT_MAX_SECONDS = 32
)

type ErrorStatusCode struct {
	StatusCode int
	Message    string
}

func (errorStatus *ErrorStatusCode) Error() string {
	return errorStatus.Message
}

type ClientConfig struct {
	// Address is the base URL of the coordinator, e.g. http://localhost:9090
	Address string
	Timeout time.Duration
}

var EClientTimeout = errors.New("Client request timed out")

// Client talks to a coordinator served by CoordinatorEndpoint. It
// implements both Coordinator and Admin.
type Client struct {
	address    string
	timeout    time.Duration
	httpClient *http.Client
	dialer     *websocket.Dialer
}

func NewClient(config ClientConfig) *Client {
	if config.Timeout == 0 {
		config.Timeout = DefaultClientTimeout
	}

	return &Client{
		address: strings.TrimSuffix(config.Address, "/"),
		timeout: config.Timeout,
		httpClient: &http.Client{
			Timeout: config.Timeout,
		},
		dialer: &websocket.Dialer{
			HandshakeTimeout: config.Timeout,
		},
	}
}

func (client *Client) sendRequest(ctx context.Context, httpVerb string, endpointURL string, body []byte) ([]byte, error) {
	request, err := http.NewRequest(httpVerb, endpointURL, bytes.NewReader(body))

	if err != nil {
		return nil, err
	}

	request = request.WithContext(ctx)

	resp, err := client.httpClient.Do(request)

	if err != nil {
		if strings.Contains(err.Error(), "Timeout") {
			return nil, EClientTimeout
		}

		return nil, err
	}

	defer resp.Body.Close()

	responseBody, err := ioutil.ReadAll(resp.Body)

	if err != nil {
		return nil, err
	}

	if resp.StatusCode != http.StatusOK {
		if dbError, ok := DBErrorFromJSON(responseBody); ok {
			return nil, dbError
		}

		return nil, &ErrorStatusCode{Message: string(responseBody), StatusCode: resp.StatusCode}
	}

	return responseBody, nil
}

// call sends body encoded as JSON and decodes the response into result
// when result is not nil
func (client *Client) call(httpVerb string, path string, body interface{}, result interface{}) error {
	ctx, cancel := context.WithTimeout(context.Background(), client.timeout)

	defer cancel()

	var encodedBody []byte

	if body != nil {
		encodedBody, _ = json.Marshal(body)
	}

	responseBody, err := client.sendRequest(ctx, httpVerb, client.address+path, encodedBody)

	if err != nil {
		return err
	}

	if result == nil {
		return nil
	}

	return json.Unmarshal(responseBody, result)
}

func hostPath(host PartitionServerAddress) string {
	return "/hosts/" + url.PathEscape(host.String())
}

func (client *Client) Host(host PartitionServerAddress) (HostInfo, error) {
	var hostInfo HostInfo

	err := client.call("GET", hostPath(host), nil, &hostInfo)

	return hostInfo, err
}

func (client *Client) HostState(host PartitionServerAddress) (HostState, error) {
	var body stateBody

	err := client.call("GET", hostPath(host)+"/state", nil, &body)

	return body.State, err
}

func (client *Client) SetHostState(host PartitionServerAddress, state HostState) error {
	return client.call("PUT", hostPath(host)+"/state", stateBody{State: state}, nil)
}

func (client *Client) CurrentCommand(host PartitionServerAddress) (HostCommand, error) {
	var body commandBody

	err := client.call("GET", hostPath(host)+"/commands/current", nil, &body)

	return body.Command, err
}

func (client *Client) NextCommand(host PartitionServerAddress) (HostCommand, error) {
	var body commandBody

	err := client.call("POST", hostPath(host)+"/commands/next", nil, &body)

	return body.Command, err
}

func (client *Client) EnqueueCommand(host PartitionServerAddress, command HostCommand) error {
	return client.call("POST", hostPath(host)+"/commands", commandBody{Command: command}, nil)
}

func (client *Client) AssignedPartitions(host PartitionServerAddress) ([]PartitionAssignment, error) {
	var partitions []PartitionAssignment

	err := client.call("GET", hostPath(host)+"/partitions", nil, &partitions)

	return partitions, err
}

func (client *Client) Domain(name string) (DomainConfig, error) {
	var domainConfig DomainConfig

	err := client.call("GET", "/domains/"+url.PathEscape(name), nil, &domainConfig)

	return domainConfig, err
}

func (client *Client) DomainVersions(name string) (VersionSet, error) {
	var versions VersionSet

	err := client.call("GET", "/domains/"+url.PathEscape(name)+"/versions", nil, &versions)

	return versions, err
}

func (client *Client) Hosts() ([]HostInfo, error) {
	var hosts []HostInfo

	err := client.call("GET", "/hosts", nil, &hosts)

	return hosts, err
}

func (client *Client) AddHost(host PartitionServerAddress, ringGroup string) error {
	return client.call("POST", "/hosts", hostBody{Address: host, RingGroup: ringGroup}, nil)
}

func (client *Client) AssignPartition(host PartitionServerAddress, assignment PartitionAssignment) error {
	return client.call("POST", hostPath(host)+"/partitions", assignment, nil)
}

func (client *Client) Domains() ([]DomainConfig, error) {
	var domains []DomainConfig

	err := client.call("GET", "/domains", nil, &domains)

	return domains, err
}

func (client *Client) AddDomain(domainConfig DomainConfig) error {
	return client.call("POST", "/domains", domainConfig, nil)
}

func (client *Client) OpenVersion(domain string, parent *VersionNumber) (DomainVersion, error) {
	var domainVersion DomainVersion

	err := client.call("POST", "/domains/"+url.PathEscape(domain)+"/versions", openVersionBody{Parent: parent}, &domainVersion)

	return domainVersion, err
}

func (client *Client) CloseVersion(domain string, versionNumber VersionNumber) error {
	return client.call("POST", "/domains/"+url.PathEscape(domain)+"/versions/"+versionNumber.String()+"/close", nil, nil)
}

// Subscribe keeps a websocket open to the coordinator's event stream for
// host, reconnecting with exponential backoff until cancel is called
func (client *Client) Subscribe(host PartitionServerAddress) (<-chan struct{}, func()) {
	notifications := make(chan struct{}, 1)
	closeChan := make(chan struct{})
	var lock sync.Mutex
	var conn *websocket.Conn
	var once sync.Once

	eventsURL := strings.Replace(client.address, "http", "ws", 1) + hostPath(host) + "/events"

	go func() {
		defer close(notifications)

		reconnectWaitSeconds := 1

		for {
			c, _, err := client.dialer.Dial(eventsURL, nil)

			if err != nil {
				Log.Warningf("Unable to subscribe to coordinator events at %s: %v. Reconnecting in %ds...", eventsURL, err, reconnectWaitSeconds)

				select {
				case <-time.After(time.Second * time.Duration(reconnectWaitSeconds)):
				case <-closeChan:
					return
				}

				if reconnectWaitSeconds < RECONNECT_WAIT_MAX_SECONDS {
					reconnectWaitSeconds *= 2
				}

				continue
			}

			lock.Lock()

			select {
			case <-closeChan:
				lock.Unlock()
				c.Close()

				return
			default:
			}

			conn = c
			lock.Unlock()

			reconnectWaitSeconds = 1

			// a fresh connection may have missed events
			select {
			case notifications <- struct{}{}:
			default:
			}

			for {
				var event HostEvent

				if err := c.ReadJSON(&event); err != nil {
					break
				}

				select {
				case notifications <- struct{}{}:
				default:
				}
			}

			c.Close()

			select {
			case <-closeChan:
				return
			default:
				Log.Warningf("Lost coordinator event stream for host %s. Reconnecting...", host)
			}
		}
	}()

	return notifications, func() {
		once.Do(func() {
			lock.Lock()
			defer lock.Unlock()

			close(closeChan)

			if conn != nil {
				conn.Close()
			}
		})
	}
}
