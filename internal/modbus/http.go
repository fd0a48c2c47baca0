package modbus

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/goburrow/modbus"
	"go.uber.org/zap"
)

// SendResponse is the body of a reply from the HTTP bridge.
type SendResponse struct {
	ADUResponse []byte
	Error       string
}

// HTTPHandler frames requests as RTU and forwards them to a bridge that
// owns the serial port.
type HTTPHandler struct {
	*modbus.RTUClientHandler

	baseURL  string
	password string
	client   *http.Client
}

func NewHTTPHandler(baseURL, password string, slaveID byte) *HTTPHandler {
	handler := modbus.NewRTUClientHandler("/dev/null")
	handler.SlaveId = slaveID
	return &HTTPHandler{
		RTUClientHandler: handler,
		baseURL:          baseURL,
		password:         password,
		client:           &http.Client{Timeout: 5 * time.Second},
	}
}

func (c *HTTPHandler) Send(aduRequest []byte) ([]byte, error) {
	req, err := http.NewRequest(http.MethodPost, c.baseURL, bytes.NewReader(aduRequest))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/octet-stream")
	if c.password != "" {
		req.SetBasicAuth("", c.password)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("bad status code: %s\n%s", resp.Status, string(body))
	}
	var sendResponse SendResponse
	if err := json.Unmarshal(body, &sendResponse); err != nil {
		return nil, err
	}
	if sendResponse.Error != "" {
		err = errors.New(sendResponse.Error)
	}
	return sendResponse.ADUResponse, err
}

func (c *HTTPHandler) Connect() error {
	return nil
}

func (c *HTTPHandler) Close() error {
	return nil
}

// SendHandler serves the bridge side: it passes each posted RTU frame to
// transporter and returns the reply as a SendResponse.
type SendHandler struct {
	Transporter modbus.Transporter
	// Password, if set, must be given with HTTP basic auth.
	Password string
}

func (s *SendHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if s.Password != "" {
		_, pass, ok := r.BasicAuth()
		if !ok || pass != s.Password {
			http.Error(w, "wrong password", http.StatusUnauthorized)
			return
		}
	}
	err := func() error {
		aduRequest, err := io.ReadAll(r.Body)
		if err != nil {
			return err
		}
		aduResponse, err := s.Transporter.Send(aduRequest)
		var errString string
		if err != nil {
			errString = err.Error()
		}
		body, err := json.Marshal(&SendResponse{
			ADUResponse: aduResponse,
			Error:       errString,
		})
		if err != nil {
			return err
		}
		w.Header().Set("Content-Type", "application/json")
		_, err = w.Write(body)
		return err
	}()
	if err != nil {
		zap.S().Warnf("SendHandler: %v", err)
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
}
