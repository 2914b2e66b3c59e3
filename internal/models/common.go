package models

import (
	"bytes"
	"encoding/json"
	"strconv"
)

// SuccessCode is the envelope code the remote service uses for success.
const SuccessCode = "success"

// Envelope is the JSON wrapper around every Doc2x API response.
type Envelope struct {
	Code BusinessCode    `json:"code"`
	Msg  string          `json:"msg,omitempty"`
	Data json.RawMessage `json:"data,omitempty"`
}

// BusinessCode accepts both string and numeric codes from the wire.
type BusinessCode string

func (c *BusinessCode) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		*c = ""
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*c = BusinessCode(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		// booleans and objects are kept verbatim
		*c = BusinessCode(string(b))
		return nil
	}
	if i, err := strconv.ParseInt(n.String(), 10, 64); err == nil {
		*c = BusinessCode(strconv.FormatInt(i, 10))
		return nil
	}
	*c = BusinessCode(n.String())
	return nil
}
