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
	if err := c.client.Call("Queuer.Start", StartRequest{}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Stop requests the daemon to stop processing and shut down.
func (c *Client) Stop() (*StopResponse, error) {
	var resp StopResponse
	if err := c.client.Call("Queuer.Stop", StopRequest{}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Status retrieves the daemon status.
func (c *Client) Status() (*StatusResponse, error) {
	var resp StatusResponse
	if err := c.client.Call("Queuer.Status", StatusRequest{}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// QueueAdd enqueues a source file.
func (c *Client) QueueAdd(sourcePath, outputDir, recipe string) (*QueueAddResponse, error) {
	var resp QueueAddResponse
	req := QueueAddRequest{SourcePath: sourcePath, OutputDir: outputDir, Recipe: recipe}
	if err := c.client.Call("Queuer.QueueAdd", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// QueueList returns the queue snapshot.
func (c *Client) QueueList() (*QueueListResponse, error) {
	var resp QueueListResponse
	if err := c.client.Call("Queuer.QueueList", QueueListRequest{}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// QueueRemove removes one task by ID.
func (c *Client) QueueRemove(id int64) (*QueueRemoveResponse, error) {
	var resp QueueRemoveResponse
	if err := c.client.Call("Queuer.QueueRemove", QueueRemoveRequest{ID: id}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// QueueClear removes every task except a running one.
func (c *Client) QueueClear() (*QueueClearResponse, error) {
	var resp QueueClearResponse
	if err := c.client.Call("Queuer.QueueClear", QueueClearRequest{}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Pause suspends or resumes claiming of new tasks.
func (c *Client) Pause(paused bool) (*PauseResponse, error) {
	var resp PauseResponse
	if err := c.client.Call("Queuer.Pause", PauseRequest{Paused: paused}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// StopCurrent force-stops the running render.
func (c *Client) StopCurrent() (*StopCurrentResponse, error) {
	var resp StopCurrentResponse
	if err := c.client.Call("Queuer.StopCurrent", StopCurrentRequest{}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// SetRecipe re-targets pending tasks to a recipe.
func (c *Client) SetRecipe(recipe string) (*SetRecipeResponse, error) {
	var resp SetRecipeResponse
	if err := c.client.Call("Queuer.SetRecipe", SetRecipeRequest{Recipe: recipe}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// SetOutputDir re-targets pending tasks to an output directory.
func (c *Client) SetOutputDir(outputDir string) (*SetOutputDirResponse, error) {
	var resp SetOutputDirResponse
	if err := c.client.Call("Queuer.SetOutputDir", SetOutputDirRequest{OutputDir: outputDir}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Events fetches the recent lifecycle event window.
func (c *Client) Events() (*EventsResponse, error) {
	var resp EventsResponse
	if err := c.client.Call("Queuer.Events", EventsRequest{}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// HistoryList fetches journaled outcomes, newest first.
func (c *Client) HistoryList(limit int) (*HistoryListResponse, error) {
	var resp HistoryListResponse
	if err := c.client.Call("Queuer.HistoryList", HistoryListRequest{Limit: limit}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// HistoryClear empties the outcome journal.
func (c *Client) HistoryClear() (*HistoryClearResponse, error) {
	var resp HistoryClearResponse
	if err := c.client.Call("Queuer.HistoryClear", HistoryClearRequest{}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}
