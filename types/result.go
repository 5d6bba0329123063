/*
 * Copyright 2025 tomoncle.
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package types

// ErrorCode is the structured failure carried by a ReturnValue.
type ErrorCode struct {
	Code         string `json:"code"`
	ShortMessage string `json:"short_message"`
	Detail       string `json:"detail,omitempty"`
}

// NewErrorCode creates an error code with a short message.
func NewErrorCode(code string, shortMessage string) *ErrorCode {
	return &ErrorCode{Code: code, ShortMessage: shortMessage}
}

// WithDetail returns a copy of the code carrying a detail text.
func (e *ErrorCode) WithDetail(detail string) *ErrorCode {
	c := *e
	c.Detail = detail
	return &c
}

func (e *ErrorCode) Error() string {
	if e.Code == "" {
		return e.ShortMessage
	}
	return e.Code + ": " + e.ShortMessage
}

// ReturnValue passes the outcome of an operation between layers. A new
// value is in the failed state with an empty message.
type ReturnValue struct {
	State   bool       `json:"state"`
	Error   *ErrorCode `json:"error,omitempty"`
	message string
}

// NewReturnValue returns a ReturnValue in its initial (failed) state.
func NewReturnValue() *ReturnValue {
	return &ReturnValue{}
}

// Message returns the success message, or the error's short message on failure.
func (r *ReturnValue) Message() string {
	if r.State {
		return r.message
	}
	if r.Error == nil {
		return ""
	}
	return r.Error.ShortMessage
}

// Success marks the value successful.
func (r *ReturnValue) Success(message string) *ReturnValue {
	r.State = true
	r.message = message
	r.Error = nil
	return r
}

// Fail marks the value failed with a message and no code.
func (r *ReturnValue) Fail(message string) *ReturnValue {
	return r.FailWith(NewErrorCode("", message))
}

// FailWith marks the value failed with a structured error.
func (r *ReturnValue) FailWith(code *ErrorCode) *ReturnValue {
	r.State = false
	r.message = ""
	r.Error = code
	return r
}
