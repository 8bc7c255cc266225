package sqlgate

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCheckAcceptsSimpleSelect(t *testing.T) {
	assert.NoError(t, Check("SELECT region, SUM(amount) FROM orders GROUP BY region"))
}

func TestCheckAcceptsSubSelect(t *testing.T) {
	assert.NoError(t, Check("SELECT * FROM (SELECT region FROM orders) AS u"))
}

func TestCheckRejectsDrop(t *testing.T) {
	assert.Error(t, Check("DROP TABLE orders"))
}

func TestCheckRejectsInsert(t *testing.T) {
	assert.Error(t, Check("INSERT INTO orders (region) VALUES ('us')"))
}

func TestCheckRejectsUpdate(t *testing.T) {
	assert.Error(t, Check("UPDATE orders SET region = 'us'"))
}

func TestCheckRejectsDelete(t *testing.T) {
	assert.Error(t, Check("DELETE FROM orders"))
}

func TestCheckRejectsMultipleStatements(t *testing.T) {
	assert.Error(t, Check("SELECT 1; SELECT 2"))
}

func TestCheckRejectsComments(t *testing.T) {
	assert.Error(t, Check("SELECT 1 -- drop later\n"))
	assert.Error(t, Check("SELECT 1 /* comment */"))
}

func TestCheckRejectsEmptyBody(t *testing.T) {
	assert.Error(t, Check("   "))
}

func TestCheckAcceptsUnion(t *testing.T) {
	assert.NoError(t, Check("SELECT region FROM orders UNION SELECT region FROM returns"))
}

func TestCheckAcceptsCTE(t *testing.T) {
	assert.NoError(t, Check("WITH totals AS (SELECT region, SUM(amount) AS amt FROM orders GROUP BY region) SELECT * FROM totals"))
}

func TestCheckAcceptsWindowFunction(t *testing.T) {
	assert.NoError(t, Check("SELECT region, SUM(amount) OVER (PARTITION BY region ORDER BY ts) AS running_total FROM orders"))
}

func TestCheckRejectsWriteHiddenInCTE(t *testing.T) {
	assert.Error(t, Check("WITH t AS (SELECT 1) INSERT INTO orders (region) VALUES ('us')"))
}

func TestCheckRejectsNonSelectDisguisedAsWindow(t *testing.T) {
	assert.Error(t, Check("UPDATE orders SET region = region OVER (PARTITION BY region)"))
}
