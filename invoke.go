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

package fcl

import (
	"context"
	"errors"
	"strings"

	"github.com/tomoncle/fcl/database"
	"github.com/tomoncle/fcl/repository"
	"github.com/tomoncle/fcl/session"
	"github.com/tomoncle/fcl/types"
	"github.com/tomoncle/fcl/utils"
)

const (
	CodeAmbiguousResult = "AMBIGUOUS_RESULT"
	CodeInvalidState    = "INVALID_STATE"
	CodeInternalError   = "INTERNAL_ERROR"
	codeStorePrefix     = "STORE_"
)

var logger = utils.NewLogger("FCL")

// Invoke runs fn and wraps its outcome. fn returns the success message.
func Invoke(ctx context.Context, fn func(ctx context.Context) (string, error)) *types.ReturnValue {
	msg, err := fn(ctx)
	return envelope(msg, err)
}

// InvokeTx runs fn inside a local transaction on a session from open. The
// transaction commits when fn succeeds; the session is always disposed.
func InvokeTx(ctx context.Context, open Opener, fn func(ctx context.Context, sess *session.Session) (string, error)) *types.ReturnValue {
	if open == nil {
		open = DefaultOpener
	}
	sess, err := open()
	if err != nil {
		return envelope("", err)
	}
	var msg string
	err = runInTransaction(ctx, sess, func(ctx context.Context) error {
		var ferr error
		msg, ferr = fn(ctx, sess)
		return ferr
	})
	err = errors.Join(err, sess.Dispose())
	return envelope(msg, err)
}

func envelope(msg string, err error) *types.ReturnValue {
	rv := types.NewReturnValue()
	if err == nil {
		return rv.Success(msg)
	}
	code := ErrorCodeOf(err)
	logger.WithFields(utils.KV("code", code.Code, "error", err)).Warn("Operation failed")
	return rv.FailWith(code)
}

// ErrorCodeOf maps err onto the envelope error codes. Store failures carry
// their kind, e.g. STORE_DUPLICATE_KEY.
func ErrorCodeOf(err error) *types.ErrorCode {
	switch {
	case errors.Is(err, repository.ErrAmbiguousResult):
		return types.NewErrorCode(CodeAmbiguousResult, "more than one element matched").WithDetail(err.Error())
	case errors.Is(err, session.ErrInvalidState):
		return types.NewErrorCode(CodeInvalidState, "invalid transaction state").WithDetail(err.Error())
	}
	if se, ok := database.AsStoreError(err); ok {
		return types.NewErrorCode(codeStorePrefix+strings.ToUpper(se.Kind.String()), "store "+se.Op+" failed").WithDetail(err.Error())
	}
	return types.NewErrorCode(CodeInternalError, "internal error").WithDetail(err.Error())
}
