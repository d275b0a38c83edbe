package models_test

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"regexp"
	"strings"
	"testing"
	"time"

	"bitbucket.org/eggnest/eggs_backend/config"
	"bitbucket.org/eggnest/eggs_backend/models"
	"bitbucket.org/eggnest/eggs_backend/utils"
	"bitbucket.org/eggnest/eggs_backend/workflow"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

func TestConsumeOrderDrainsOldestContainersFirst(t *testing.T) {
	if strings.TrimSpace(os.Getenv("INTEGRATION_TESTS")) == "" {
		t.Skip("set INTEGRATION_TESTS=1 to run integration tests (requires docker)")
	}

	ctx := context.Background()

	redisName, redisPort := startRedisContainer(t)
	t.Cleanup(func() { _ = dockerRmForce(redisName) })

	mysqlName, mysqlPort := startMySQLContainer(t)
	t.Cleanup(func() { _ = dockerRmForce(mysqlName) })

	// Wire env for config.Connect* helpers.
	t.Setenv("REDIS_ADDRESS", fmt.Sprintf("127.0.0.1:%s", redisPort))
	t.Setenv("DB_USER", "root")
	t.Setenv("DB_PASSWORD", "testpw")
	t.Setenv("DB_HOST", "127.0.0.1")
	t.Setenv("DB_PORT", mysqlPort)
	t.Setenv("DB_NAME", "eggnest_test")

	config.ConnectDatabaseWithRetry()
	config.ConnectRedisWithRetry()
	models.MigrateTable()

	logger := config.GetLogger()

	alice, err := models.CreateUser(ctx, &models.NewUser{
		Username: "alice",
		Password: "supersecret1",
		Nickname: "Alice",
	})
	if err != nil {
		t.Fatalf("CreateUser: %v", err)
	}
	ctx = utils.SetUserIdInContext(ctx, alice.ID.String())
	ctx = utils.SetUsernameInContext(ctx, alice.Username)

	room, err := models.CreateRoom(ctx, &models.NewRoom{Name: "Kitchen"})
	if err != nil {
		t.Fatalf("CreateRoom: %v", err)
	}
	ctx = utils.SetRoomIdInContext(ctx, room.ID.String())

	// Two purchases a day apart: 5 eggs for 10.00 then 5 eggs for 15.00.
	day1 := time.Date(2026, 8, 1, 9, 0, 0, 0, time.UTC)
	day2 := day1.Add(24 * time.Hour)

	soA, contA, err := workflow.CreateStockOrder(ctx, logger, &workflow.NewStockOrder{
		Qty:         5,
		Amount:      decimal.RequireFromString("10.00"),
		PurchasedAt: &day1,
	})
	if err != nil {
		t.Fatalf("CreateStockOrder(A): %v", err)
	}
	assertPostingLockFree(t, room.ID.String())
	if soA.Name != "SO-alice-1" {
		t.Fatalf("first stock order name = %q, want SO-alice-1", soA.Name)
	}
	if !contA.UnitPrice.Equal(decimal.RequireFromString("2.00")) {
		t.Fatalf("container A unit price = %s, want 2.00", contA.UnitPrice)
	}

	_, contB, err := workflow.CreateStockOrder(ctx, logger, &workflow.NewStockOrder{
		Qty:         5,
		Amount:      decimal.RequireFromString("15.00"),
		PurchasedAt: &day2,
	})
	if err != nil {
		t.Fatalf("CreateStockOrder(B): %v", err)
	}

	co, err := workflow.CreateConsumeOrder(ctx, logger, &workflow.NewConsumeOrder{Qty: 7})
	if err != nil {
		t.Fatalf("CreateConsumeOrder: %v", err)
	}
	assertPostingLockFree(t, room.ID.String())
	if co.Name != "CO-alice-1" {
		t.Fatalf("consume order name = %q, want CO-alice-1", co.Name)
	}
	if len(co.Details) != 2 {
		t.Fatalf("expected 2 details, got %d", len(co.Details))
	}
	if co.Details[0].ContainerId != contA.ID || co.Details[0].Qty != 5 {
		t.Fatalf("detail 0 = container %d qty %d, want container %d qty 5",
			co.Details[0].ContainerId, co.Details[0].Qty, contA.ID)
	}
	if co.Details[1].ContainerId != contB.ID || co.Details[1].Qty != 2 {
		t.Fatalf("detail 1 = container %d qty %d, want container %d qty 2",
			co.Details[1].ContainerId, co.Details[1].Qty, contB.ID)
	}
	if !co.TotalAmount.Equal(decimal.RequireFromString("16.00")) {
		t.Fatalf("consume order total = %s, want 16.00", co.TotalAmount)
	}

	// Oldest batch is drained and flipped to Depleted; newer batch keeps 3.
	freshA, err := models.GetContainer(ctx, room.ID.String(), contA.ID)
	if err != nil {
		t.Fatalf("GetContainer(A): %v", err)
	}
	if freshA.RemainingQty != 0 || freshA.Status != models.ContainerStatusDepleted {
		t.Fatalf("container A = qty %d status %s, want 0/%s",
			freshA.RemainingQty, freshA.Status, models.ContainerStatusDepleted)
	}
	freshB, err := models.GetContainer(ctx, room.ID.String(), contB.ID)
	if err != nil {
		t.Fatalf("GetContainer(B): %v", err)
	}
	if freshB.RemainingQty != 3 || freshB.Status != models.ContainerStatusAvailable {
		t.Fatalf("container B = qty %d status %s, want 3/%s",
			freshB.RemainingQty, freshB.Status, models.ContainerStatusAvailable)
	}

	// More than on hand: whole request fails, nothing is decremented.
	_, err = workflow.CreateConsumeOrder(ctx, logger, &workflow.NewConsumeOrder{Qty: 10})
	if !utils.IsInsufficientStock(err) {
		t.Fatalf("expected insufficient stock error, got %v", err)
	}
	var shortErr *utils.InsufficientStockError
	if errors.As(err, &shortErr) && shortErr.Shortfall != 7 {
		t.Fatalf("shortfall = %d, want 7", shortErr.Shortfall)
	}
	afterB, err := models.GetContainer(ctx, room.ID.String(), contB.ID)
	if err != nil {
		t.Fatalf("GetContainer(B) after failed consume: %v", err)
	}
	if afterB.RemainingQty != 3 {
		t.Fatalf("failed consume changed remaining qty: %d", afterB.RemainingQty)
	}

	// A failed request must leave the posting lock free as well.
	assertPostingLockFree(t, room.ID.String())

	// Zero quantity is rejected before any row is touched.
	_, err = workflow.CreateConsumeOrder(ctx, logger, &workflow.NewConsumeOrder{Qty: 0})
	if !utils.IsInvalidRequest(err) {
		t.Fatalf("expected invalid request for qty 0, got %v", err)
	}

	// A version bumped out from under a prepared decrement must surface as a
	// serialization conflict and leave the row untouched.
	db := config.GetDB()
	stale, err := models.GetContainer(ctx, room.ID.String(), contB.ID)
	if err != nil {
		t.Fatalf("GetContainer(B) before conflict: %v", err)
	}
	if err := db.Model(&models.Container{}).Where("id = ?", contB.ID).
		Update("version", gorm.Expr("version + 1")).Error; err != nil {
		t.Fatalf("bump version: %v", err)
	}
	ordersBefore, err := models.ListOrders(ctx, room.ID.String())
	if err != nil {
		t.Fatalf("ListOrders before conflict: %v", err)
	}

	conflictTx := db.Begin()
	stale.RemainingQty--
	err = models.PersistContainerDecrement(conflictTx, stale, 1)
	if !utils.IsConcurrencyConflict(err) {
		conflictTx.Rollback()
		t.Fatalf("expected concurrency conflict on stale version, got %v", err)
	}
	conflictTx.Rollback()

	conflictedB, err := models.GetContainer(ctx, room.ID.String(), contB.ID)
	if err != nil {
		t.Fatalf("GetContainer(B) after conflict: %v", err)
	}
	if conflictedB.RemainingQty != 3 {
		t.Fatalf("aborted decrement changed remaining qty: %d", conflictedB.RemainingQty)
	}
	ordersAfter, err := models.ListOrders(ctx, room.ID.String())
	if err != nil {
		t.Fatalf("ListOrders after conflict: %v", err)
	}
	if len(ordersAfter) != len(ordersBefore) {
		t.Fatalf("aborted attempt left order rows: before=%d after=%d", len(ordersBefore), len(ordersAfter))
	}

	// Second member joins by code and can leave again.
	bob, err := models.CreateUser(ctx, &models.NewUser{
		Username: "bob",
		Password: "supersecret2",
	})
	if err != nil {
		t.Fatalf("CreateUser(bob): %v", err)
	}
	bobCtx := utils.SetUserIdInContext(context.Background(), bob.ID.String())
	bobCtx = utils.SetUsernameInContext(bobCtx, bob.Username)

	if _, err := models.JoinRoomByCode(bobCtx, &models.JoinRoomInput{Code: room.Code}); err != nil {
		t.Fatalf("JoinRoomByCode: %v", err)
	}
	if _, err := models.GetRoomMember(bobCtx, room.ID.String(), bob.ID.String()); err != nil {
		t.Fatalf("bob should be a member after joining: %v", err)
	}
	if err := models.LeaveRoom(bobCtx, room.ID.String()); err != nil {
		t.Fatalf("LeaveRoom: %v", err)
	}
	if _, err := models.GetRoomMember(bobCtx, room.ID.String(), bob.ID.String()); err == nil {
		t.Fatal("membership must be gone after leaving")
	}
	if err := models.LeaveRoom(ctx, room.ID.String()); err == nil {
		t.Fatal("the owner must not be able to leave")
	}

	summary, err := models.GetRoomStockSummary(ctx, room.ID.String())
	if err != nil {
		t.Fatalf("GetRoomStockSummary: %v", err)
	}
	if summary.RemainingQty != 3 {
		t.Fatalf("summary remaining = %d, want 3", summary.RemainingQty)
	}
	if !summary.OnHandValue.Equal(decimal.RequireFromString("9.00")) {
		t.Fatalf("summary on-hand value = %s, want 9.00", summary.OnHandValue)
	}
}

// IS_FREE_LOCK sees the advisory lock no matter which pooled connection holds
// it, so a lock leaked on a returned connection fails here deterministically.
func assertPostingLockFree(t *testing.T, roomId string) {
	t.Helper()
	var free int
	if err := config.GetDB().Raw("SELECT IS_FREE_LOCK(?)", "posting:"+roomId).Scan(&free).Error; err != nil {
		t.Fatalf("IS_FREE_LOCK: %v", err)
	}
	if free != 1 {
		t.Fatalf("posting lock for room %s still held after the request finished", roomId)
	}
}

func startRedisContainer(t *testing.T) (containerName, hostPort string) {
	t.Helper()
	name := fmt.Sprintf("eggnest-test-redis-%d", time.Now().UnixNano())
	out, err := dockerRun(
		"run", "-d", "--name", name,
		"-p", "127.0.0.1:0:6379",
		"redis:7-alpine",
	)
	if err != nil {
		t.Fatalf("start redis container: %v\n%s", err, out)
	}
	port, err := dockerHostPort(name, "6379/tcp")
	if err != nil {
		t.Fatalf("redis docker port: %v", err)
	}
	// wait until ready
	deadline := time.Now().Add(60 * time.Second)
	for time.Now().Before(deadline) {
		_, err := dockerRun("exec", name, "redis-cli", "ping")
		if err == nil {
			return name, port
		}
		time.Sleep(250 * time.Millisecond)
	}
	t.Fatalf("redis did not become ready")
	return "", ""
}

func startMySQLContainer(t *testing.T) (containerName, hostPort string) {
	t.Helper()
	name := fmt.Sprintf("eggnest-test-mysql-%d", time.Now().UnixNano())
	out, err := dockerRun(
		"run", "-d", "--name", name,
		"-e", "MYSQL_ROOT_PASSWORD=testpw",
		"-e", "MYSQL_DATABASE=eggnest_test",
		"-p", "127.0.0.1:0:3306",
		"mysql:8.0",
		"--default-authentication-plugin=mysql_native_password",
	)
	if err != nil {
		t.Fatalf("start mysql container: %v\n%s", err, out)
	}
	port, err := dockerHostPort(name, "3306/tcp")
	if err != nil {
		t.Fatalf("mysql docker port: %v", err)
	}
	// wait until ready
	deadline := time.Now().Add(120 * time.Second)
	for time.Now().Before(deadline) {
		_, err := dockerRun("exec", name, "mysqladmin", "ping", "-h", "127.0.0.1", "-ptestpw", "--silent")
		if err == nil {
			return name, port
		}
		time.Sleep(500 * time.Millisecond)
	}
	t.Fatalf("mysql did not become ready")
	return "", ""
}

func dockerHostPort(container, portProto string) (string, error) {
	out, err := dockerRun("port", container, portProto)
	if err != nil {
		return "", fmt.Errorf("docker port: %w: %s", err, out)
	}
	// Example: "127.0.0.1:49154\n"
	re := regexp.MustCompile(`:(\d+)`)
	m := re.FindStringSubmatch(out)
	if len(m) != 2 {
		return "", fmt.Errorf("unexpected docker port output: %q", out)
	}
	return m[1], nil
}

func dockerRmForce(container string) error {
	if strings.TrimSpace(container) == "" {
		return nil
	}
	_, err := dockerRun("rm", "-f", container)
	return err
}

func dockerRun(args ...string) (string, error) {
	cmd := exec.Command("docker", args...)
	b, err := cmd.CombinedOutput()
	return string(b), err
}
