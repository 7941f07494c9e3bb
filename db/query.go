// Copyright 2018 Google Inc. All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package db

import (
	"context"
	"encoding/json"
	"net/http"
	"sort"
	"strconv"
	"strings"

	"github.com/firebase/firebase-bridge-go/internal"
	"github.com/firebase/firebase-bridge-go/variant"
	"go.uber.org/zap"
)

// Query represents a complex query that can be executed on a Ref.
//
// Complex queries can consist of up to 2 components: a required ordering constraint, and an
// optional filtering constraint. At the server, data is first sorted according to the given
// ordering constraint (e.g. order by child). Then the filtering constraint (e.g. limit, range) is
// applied on the sorted data to produce the final result. The same constraints are evaluated
// locally to order the children of the result.
//
// Query values are immutable. Every modifier returns a new Query. The first invalid modifier
// is reported by Get, Listen and KeepSynced.
type Query struct {
	ref        *Ref
	order      ordering
	ordered    bool
	start, end *bound
	equal      bool
	limitFirst int
	limitLast  int
	err        error
}

type bound struct {
	value variant.Variant
	key   string
}

// Ref returns the location this query reads from.
func (q *Query) Ref() *Ref {
	return q.ref
}

// OrderByChild returns a query that orders children by the value of the specified child path.
func (q *Query) OrderByChild(path string) *Query {
	segs := parsePath(path)
	if len(segs) == 0 || strings.ContainsAny(path, invalidChars) {
		return q.fail("invalid child path: %q", path)
	}
	return q.orderBy(ordering{kind: orderByChild, path: segs})
}

// OrderByKey returns a query that orders children by key.
func (q *Query) OrderByKey() *Query {
	return q.orderBy(ordering{kind: orderByKey})
}

// OrderByValue returns a query that orders children by value.
func (q *Query) OrderByValue() *Query {
	return q.orderBy(ordering{kind: orderByValue})
}

// OrderByPriority returns a query that orders children by priority.
func (q *Query) OrderByPriority() *Query {
	return q.orderBy(ordering{kind: orderByPriority})
}

func (q *Query) orderBy(o ordering) *Query {
	if q.ordered {
		return q.fail("cannot set more than one order by constraint")
	}
	n := q.clone()
	n.order = o
	n.ordered = true
	return n
}

// StartAt returns a query that only includes children whose order value is greater than or
// equal to v. A non-empty key further restricts the children with an order value equal to v to
// those with a key greater than or equal to key.
func (q *Query) StartAt(v variant.Variant, key string) *Query {
	if q.start != nil {
		return q.fail("cannot set more than one start constraint")
	}
	if err := validateBound(v); err != nil {
		return q.fail("invalid start value: %v", err)
	}
	n := q.clone()
	n.start = &bound{value: v, key: key}
	return n
}

// EndAt returns a query that only includes children whose order value is less than or equal
// to v.
func (q *Query) EndAt(v variant.Variant, key string) *Query {
	if q.end != nil {
		return q.fail("cannot set more than one end constraint")
	}
	if err := validateBound(v); err != nil {
		return q.fail("invalid end value: %v", err)
	}
	n := q.clone()
	n.end = &bound{value: v, key: key}
	return n
}

// EqualTo returns a query that only includes children whose order value is equal to v.
func (q *Query) EqualTo(v variant.Variant, key string) *Query {
	if q.start != nil || q.end != nil {
		return q.fail("cannot combine equal to with start or end constraints")
	}
	if err := validateBound(v); err != nil {
		return q.fail("invalid equal to value: %v", err)
	}
	n := q.clone()
	b := &bound{value: v, key: key}
	n.start, n.end, n.equal = b, b, true
	return n
}

// LimitToFirst returns a query that is limited to the first n children.
func (q *Query) LimitToFirst(n int) *Query {
	if err := q.checkLimit(n); err != nil {
		return q.fail("%v", err)
	}
	c := q.clone()
	c.limitFirst = n
	return c
}

// LimitToLast returns a query that is limited to the last n children.
func (q *Query) LimitToLast(n int) *Query {
	if err := q.checkLimit(n); err != nil {
		return q.fail("%v", err)
	}
	c := q.clone()
	c.limitLast = n
	return c
}

func (q *Query) checkLimit(n int) error {
	if q.limitFirst != 0 || q.limitLast != 0 {
		return newError(ErrorOperationFailed, "cannot set both limit parameter to first and last")
	}
	if n <= 0 {
		return newError(ErrorOperationFailed, "limit must be a positive integer: %d", n)
	}
	return nil
}

func (q *Query) clone() *Query {
	n := *q
	return &n
}

func (q *Query) fail(format string, args ...interface{}) *Query {
	n := q.clone()
	if n.err == nil {
		n.err = newError(ErrorOperationFailed, format, args...)
	}
	return n
}

func (q *Query) filtered() bool {
	return q.start != nil || q.end != nil || q.limitFirst > 0 || q.limitLast > 0
}

// params returns the REST query parameters of this query. Limits are left to the client when a
// bound carries a key, because the REST API cannot express key bounds.
func (q *Query) params() (map[string]string, error) {
	qp := make(map[string]string)
	if !q.ordered && !q.filtered() {
		return qp, nil
	}
	ob, err := q.order.param()
	if err != nil {
		return nil, err
	}
	qp["orderBy"] = ob

	encode := func(name string, b *bound) error {
		v, err := json.Marshal(b.value)
		if err != nil {
			return newError(ErrorInvalidVariantType, "failed to encode %s: %v", name, err)
		}
		qp[name] = string(v)
		return nil
	}
	if q.equal {
		if err := encode("equalTo", q.start); err != nil {
			return nil, err
		}
	} else {
		if q.start != nil {
			if err := encode("startAt", q.start); err != nil {
				return nil, err
			}
		}
		if q.end != nil {
			if err := encode("endAt", q.end); err != nil {
				return nil, err
			}
		}
	}

	if (q.start != nil && q.start.key != "") || (q.end != nil && q.end.key != "") {
		return qp, nil
	}
	if q.limitFirst > 0 {
		qp["limitToFirst"] = strconv.Itoa(q.limitFirst)
	}
	if q.limitLast > 0 {
		qp["limitToLast"] = strconv.Itoa(q.limitLast)
	}
	return qp, nil
}

// cacheKey identifies the data of this query in the client read cache.
func (q *Query) cacheKey(qp map[string]string) string {
	if len(qp) == 0 {
		return q.ref.Path
	}
	keys := make([]string, 0, len(qp))
	for k := range qp {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var sb strings.Builder
	sb.WriteString(q.ref.Path)
	for i, k := range keys {
		if i == 0 {
			sb.WriteByte('?')
		} else {
			sb.WriteByte('&')
		}
		sb.WriteString(k + "=" + qp[k])
	}
	return sb.String()
}

// Get executes the query and returns the results as a snapshot.
//
// While the client is offline, Get is answered from the data last received for the same query
// when persistence is enabled, and fails with ErrorDisconnected otherwise.
func (q *Query) Get(ctx context.Context) (*DataSnapshot, error) {
	if q.err != nil {
		return nil, q.err
	}
	qp, err := q.params()
	if err != nil {
		return nil, err
	}
	c := q.ref.client
	key := q.cacheKey(qp)
	if !c.Online() {
		if node, ok := c.recall(key); ok {
			return q.snapshot(node), nil
		}
		return nil, newError(ErrorDisconnected, "client is offline")
	}

	req := c.newRequest(http.MethodGet, q.ref.Path, nil,
		internal.WithQueryParam("format", "export"),
		internal.WithQueryParams(qp))
	resp, err := c.send(ctx, req)
	if err != nil {
		return nil, err
	}
	node, err := variant.FromJSON(resp.Body)
	if err != nil {
		return nil, newError(ErrorOperationFailed, "error while parsing response: %v", err)
	}
	c.remember(key, node)
	return q.snapshot(node), nil
}

// KeepSynced keeps a listener open on the query while keep is true, so that its data stays
// available to offline reads.
func (q *Query) KeepSynced(keep bool) error {
	if q.err != nil {
		return q.err
	}
	qp, err := q.params()
	if err != nil {
		return err
	}
	key := q.cacheKey(qp)
	c := q.ref.client

	c.mu.Lock()
	existing := c.synced[key]
	if keep && existing == nil && !c.closed {
		c.synced[key] = q.listen(context.Background(), func(Event) {}, func(err error) {
			c.log.Warn("synced query canceled", zap.String("query", key), zap.Error(err))
		})
	}
	if !keep {
		delete(c.synced, key)
	}
	c.mu.Unlock()

	if !keep && existing != nil {
		existing.Remove()
	}
	return nil
}

// snapshot restricts node to the children selected by the query.
func (q *Query) snapshot(node variant.Variant) *DataSnapshot {
	view, keys := q.view(node)
	s := newSnapshot(q.ref.Key, view, q.order)
	s.keys = keys
	return s
}

// view applies the ordering, range and limit constraints of the query to node, returning the
// selected data and its ordered child keys.
func (q *Query) view(node variant.Variant) (variant.Variant, []string) {
	keys := sortedChildren(node, q.order)
	if keys == nil {
		keys = []string{}
	}
	if !q.filtered() || len(keys) == 0 {
		return node, keys
	}

	selected := make([]string, 0, len(keys))
	for _, k := range keys {
		if q.inRange(k, childOf(node, k)) {
			selected = append(selected, k)
		}
	}
	if q.limitFirst > 0 && len(selected) > q.limitFirst {
		selected = selected[:q.limitFirst]
	}
	if q.limitLast > 0 && len(selected) > q.limitLast {
		selected = selected[len(selected)-q.limitLast:]
	}
	if len(selected) == 0 {
		return variant.Null(), selected
	}

	pairs := make([]variant.Pair, len(selected))
	for i, k := range selected {
		pairs[i] = variant.Pair{Key: variant.String(k), Value: childOf(node, k)}
	}
	return variant.Map(pairs...), selected
}

func (q *Query) inRange(key string, node variant.Variant) bool {
	if q.start != nil && q.compareBound(key, node, q.start) < 0 {
		return false
	}
	if q.end != nil && q.compareBound(key, node, q.end) > 0 {
		return false
	}
	return true
}

func (q *Query) compareBound(key string, node variant.Variant, b *bound) int {
	var c int
	switch q.order.kind {
	case orderByKey:
		return compareKeys(key, b.value.StringValue())
	case orderByPriority:
		c = comparePriorities(priorityOf(node), b.value)
	default:
		c = compareValues(q.order.sortValue(node), b.value)
	}
	if c != 0 || b.key == "" {
		return c
	}
	return compareKeys(key, b.key)
}

func validateBound(v variant.Variant) error {
	if v.IsContainer() {
		return newError(ErrorInvalidVariantType, "query bounds must be scalar values: %s", v.Type())
	}
	return nil
}
