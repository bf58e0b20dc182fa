package ipc

import (
	"net"
	"net/rpc"
	"net/rpc/jsonrpc"
	"time"
)

// Client provides RPC access to the daemon.
type Client struct {
	conn   net.Conn
	client *rpc.Client
}

// Dial connects to the IPC server at the given socket path.
func Dial(path string) (*Client, error) {
	conn, err := net.DialTimeout("unix", path, 2*time.Second)
	if err != nil {
		return nil, err
	}
	rpcClient := rpc.NewClientWithCodec(jsonrpc.NewClientCodec(conn))
	return &Client{conn: conn, client: rpcClient}, nil
}

// Close closes the underlying connection.
func (c *Client) Close() error {
	if c.client != nil {
		_ = c.client.Close()
	}
	if c.conn != nil {
		return c.conn.Close()
	}
	return nil
}

// Start requests the daemon to start processing.
func (c *Client) Start() (*StartResponse, error) {
	var resp StartResponse
	if err := c.client.Call("Strata.Start", StartRequest{}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Stop requests the daemon to stop processing.
func (c *Client) Stop() (*StopResponse, error) {
	var resp StopResponse
	if err := c.client.Call("Strata.Stop", StopRequest{}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Status retrieves the daemon status.
func (c *Client) Status() (*StatusResponse, error) {
	var resp StatusResponse
	if err := c.client.Call("Strata.Status", StatusRequest{}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Submit enqueues a new analysis job.
func (c *Client) Submit(req SubmitRequest) (*SubmitResponse, error) {
	var resp SubmitResponse
	if err := c.client.Call("Strata.Submit", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// JobList returns jobs, optionally filtered by dataset.
func (c *Client) JobList(req JobListRequest) (*JobListResponse, error) {
	var resp JobListResponse
	if err := c.client.Call("Strata.JobList", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// JobGet returns a single job by id.
func (c *Client) JobGet(jobID string) (*JobGetResponse, error) {
	var resp JobGetResponse
	if err := c.client.Call("Strata.JobGet", JobGetRequest{JobID: jobID}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Cancel cancels a job by id.
func (c *Client) Cancel(jobID, reason string) (*CancelResponse, error) {
	var resp CancelResponse
	if err := c.client.Call("Strata.Cancel", CancelRequest{JobID: jobID, Reason: reason}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Result fetches result metadata for a completed job.
func (c *Client) Result(jobID string) (*ResultResponse, error) {
	var resp ResultResponse
	if err := c.client.Call("Strata.Result", ResultRequest{JobID: jobID}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Algorithms retrieves the algorithm catalog.
func (c *Client) Algorithms() (*AlgorithmsResponse, error) {
	var resp AlgorithmsResponse
	if err := c.client.Call("Strata.Algorithms", AlgorithmsRequest{}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Datasets lists available datasets.
func (c *Client) Datasets() (*DatasetsResponse, error) {
	var resp DatasetsResponse
	if err := c.client.Call("Strata.Datasets", DatasetsRequest{}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// TestNotification triggers a notification test via the daemon.
func (c *Client) TestNotification() (*TestNotificationResponse, error) {
	var resp TestNotificationResponse
	if err := c.client.Call("Strata.TestNotification", TestNotificationRequest{}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}
