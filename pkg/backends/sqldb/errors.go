// Copyright 2026 Teradata
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//	http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.
package sqldb

import (
	"context"
	"errors"
	"strconv"

	"github.com/go-sql-driver/mysql"
	"github.com/lib/pq"
	"github.com/teradata-labs/nl2sql/pkg/fabric"
	"modernc.org/sqlite"
)

// classifyError maps a driver error to a *fabric.QueryError carrying the
// driver's error code.
func classifyError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return &fabric.QueryError{Type: "timeout", Message: err.Error(), Err: err}
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return fabric.NewQueryError(string(pqErr.Code), err)
	}

	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) {
		return fabric.NewQueryError(strconv.Itoa(int(myErr.Number)), err)
	}

	var liteErr *sqlite.Error
	if errors.As(err, &liteErr) {
		// SQLite result codes are too coarse to classify; the message decides
		qe := fabric.NewQueryError("", err)
		qe.Code = strconv.Itoa(liteErr.Code())
		return qe
	}

	return fabric.NewQueryError("", err)
}
