package repository

import (
	"context"
	"os"
	"testing"
	"time"

	"histai-go/internal/model"
	"histai-go/pkg/database/sqlitetest"

	"github.com/go-redis/redis/v8"
	"gorm.io/gorm"
)

func openDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := sqlitetest.Open()
	if err != nil {
		t.Fatalf("sqlitetest.Open: %v", err)
	}
	return db
}

func TestUserRepository(t *testing.T) {
	repo := NewUserRepository(openDB(t))
	users := []*model.User{
		{TelegramID: 100, Username: "alice", FirstName: "Alice", IsSubscribed: true},
		{TelegramID: 200, Username: "bob", FirstName: "Bob"},
		{TelegramID: 300, Username: "carol", FirstName: "Carol", IsSubscribed: true},
	}
	for _, u := range users {
		if err := repo.Create(u); err != nil {
			t.Fatalf("Create: %v", err)
		}
	}

	got, err := repo.FindByTelegramID(200)
	if err != nil || got.Username != "bob" {
		t.Fatalf("FindByTelegramID = %+v, %v", got, err)
	}
	if _, err := repo.FindByTelegramID(999); !IsNotFound(err) {
		t.Fatalf("expected not found, got %v", err)
	}

	subscribed := true
	list, total, err := repo.List(UserFilter{Subscribed: &subscribed, SortBy: "username", SortOrder: "asc", Limit: 10})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if total != 2 || list[0].Username != "alice" || list[1].Username != "carol" {
		t.Fatalf("List = %d %+v", total, list)
	}

	list, total, err = repo.List(UserFilter{Search: "BO", Limit: 10})
	if err != nil || total != 1 || list[0].TelegramID != 200 {
		t.Fatalf("search = %d %+v %v", total, list, err)
	}

	if err := repo.SetAdmin(users[1].ID, true); err != nil {
		t.Fatalf("SetAdmin: %v", err)
	}
	if err := repo.SetAdmin(9999, true); !IsNotFound(err) {
		t.Fatalf("SetAdmin missing = %v", err)
	}
	if err := repo.SetSubscribed(users[1].ID, true); err != nil {
		t.Fatalf("SetSubscribed: %v", err)
	}
	bob, _ := repo.FindByID(users[1].ID)
	if !bob.IsAdmin || !bob.IsSubscribed {
		t.Fatalf("bob = %+v", bob)
	}
	if n, _ := repo.CountSubscribed(); n != 3 {
		t.Fatalf("CountSubscribed = %d", n)
	}
	times, err := repo.CreatedSince(time.Now().UTC().Add(-time.Hour))
	if err != nil || len(times) != 3 {
		t.Fatalf("CreatedSince = %v %v", times, err)
	}
}

func TestPersonRepository(t *testing.T) {
	repo := NewPersonRepository(openDB(t))
	for _, p := range []*model.HistoricalPerson{
		{Name: "Napoleon Bonaparte", NameEn: "Napoleon", Era: "19th Century", Category: model.CategoryPolitician, Description: "French emperor"},
		{Name: "Leonardo da Vinci", Era: "Renaissance", Category: model.CategoryArtist, Description: "Painter and inventor"},
		{Name: "Bonaparte Lucien", Era: "19th Century", Description: "Brother of Napoleon"},
	} {
		if err := repo.Create(p); err != nil {
			t.Fatalf("Create: %v", err)
		}
	}

	p, err := repo.FindByName("  NAPOLEON ")
	if err != nil || p.Name != "Napoleon Bonaparte" {
		t.Fatalf("FindByName by name_en = %+v %v", p, err)
	}
	if _, err := repo.FindByName("Caesar"); !IsNotFound(err) {
		t.Fatalf("expected not found, got %v", err)
	}

	found, err := repo.Search("napoleon", 10)
	if err != nil || len(found) != 2 || found[0].Name != "Bonaparte Lucien" {
		t.Fatalf("Search = %+v %v", found, err)
	}

	list, total, err := repo.List(PersonFilter{Era: "19th Century", Limit: 1})
	if err != nil || total != 2 || len(list) != 1 {
		t.Fatalf("List = %d %+v %v", total, list, err)
	}

	ac, err := repo.Autocomplete("bona", 5)
	if err != nil || len(ac) != 2 || ac[0].Name != "Bonaparte Lucien" {
		t.Fatalf("Autocomplete = %+v %v", ac, err)
	}

	byIDs, err := repo.FindByIDs([]uint{2, 42, 1})
	if err != nil || len(byIDs) != 2 || byIDs[0].ID != 2 || byIDs[1].ID != 1 {
		t.Fatalf("FindByIDs = %+v %v", byIDs, err)
	}
}

func TestSubscriptionRepositoryUpsert(t *testing.T) {
	repo := NewSubscriptionRepository(openDB(t))
	if c, err := repo.Latest(1, "@chan"); err != nil || c != nil {
		t.Fatalf("Latest empty = %+v %v", c, err)
	}
	first := time.Now().Add(-48 * time.Hour)
	if err := repo.Upsert(1, "@chan", false, first); err != nil {
		t.Fatalf("Upsert: %v", err)
	}
	now := time.Now()
	if err := repo.Upsert(1, "@chan", true, now); err != nil {
		t.Fatalf("Upsert again: %v", err)
	}
	c, err := repo.Latest(1, "@chan")
	if err != nil || c == nil || !c.IsSubscribed || c.NeedsRecheck(now) {
		t.Fatalf("Latest = %+v %v", c, err)
	}
}

func TestGenerationRepository(t *testing.T) {
	db := openDB(t)
	repo := NewGenerationRepository(db)
	person := &model.HistoricalPerson{Name: "Napoleon", Era: "19th Century"}
	if err := NewPersonRepository(db).Create(person); err != nil {
		t.Fatal(err)
	}

	now := time.Now().UTC()
	old := now.Add(-10 * 24 * time.Hour)
	gens := []*model.Generation{
		{ID: "g1", UserID: 1, HistoricalPersonID: &person.ID, PersonName: "Napoleon", ImageURL: "http://img/1", Status: model.GenerationStatusCompleted, CreatedAt: now.Add(-time.Minute)},
		{ID: "g2", UserID: 1, PersonName: "Napoleon", ImageURL: "http://img/2", Status: model.GenerationStatusCompleted, CreatedAt: now},
		{ID: "g3", UserID: 1, PersonName: "Caesar", Status: model.GenerationStatusFailed, ErrorMessage: "boom", CreatedAt: now},
		{ID: "g4", UserID: 2, PersonName: "Caesar", ImageURL: "http://img/4", Status: model.GenerationStatusCompleted, CreatedAt: old},
		{ID: "g5", UserID: 2, PersonName: "Caesar", Status: model.GenerationStatusFailed, CreatedAt: old},
	}
	for _, g := range gens {
		if err := repo.Create(g); err != nil {
			t.Fatalf("Create: %v", err)
		}
	}

	dayStart := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	if n, _ := repo.CountByUserSince(1, model.GenerationStatusCompleted, dayStart.Add(-time.Hour)); n != 2 {
		t.Fatalf("CountByUserSince = %d", n)
	}

	list, total, err := repo.ListCompletedByUser(1, 0, 10)
	if err != nil || total != 2 || list[0].ID != "g2" || list[1].HistoricalPerson == nil {
		t.Fatalf("ListCompletedByUser = %d %+v %v", total, list, err)
	}

	pub, err := repo.ListPublic(2)
	if err != nil || len(pub) != 2 || pub[0].ID != "g2" {
		t.Fatalf("ListPublic = %+v %v", pub, err)
	}

	counts, err := repo.CountByStatus(nil)
	if err != nil || counts != (StatusCounts{Total: 5, Completed: 3, Failed: 2}) {
		t.Fatalf("CountByStatus = %+v %v", counts, err)
	}
	since := now.Add(-24 * time.Hour)
	counts, _ = repo.CountByStatus(&since)
	if counts.Total != 3 {
		t.Fatalf("CountByStatus since = %+v", counts)
	}

	top, err := repo.TopUsers(old.Add(-time.Hour), 10)
	if err != nil || len(top) != 2 || top[0].UserID != 1 || top[0].Count != 2 {
		t.Fatalf("TopUsers = %+v %v", top, err)
	}
	persons, err := repo.TopPersons(old.Add(-time.Hour), 10)
	if err != nil || persons[0].PersonName != "Napoleon" || persons[0].Count != 2 {
		t.Fatalf("TopPersons = %+v %v", persons, err)
	}

	act, err := repo.ActivitySince(since)
	if err != nil || len(act) != 3 {
		t.Fatalf("ActivitySince = %+v %v", act, err)
	}
	byUsers, err := repo.ActivityByUsers([]uint{2})
	if err != nil || len(byUsers) != 2 {
		t.Fatalf("ActivityByUsers = %+v %v", byUsers, err)
	}

	purged, err := repo.DeleteFailedBefore(now.Add(-7 * 24 * time.Hour))
	if err != nil || purged != 1 {
		t.Fatalf("DeleteFailedBefore = %d %v", purged, err)
	}
	if err := repo.Delete("g1"); err != nil {
		t.Fatal(err)
	}
	if _, err := repo.FindByID("g1"); !IsNotFound(err) {
		t.Fatalf("expected not found, got %v", err)
	}
}

// Redis 仓库需要真实的 Redis，设置 HISTAI_TEST_REDIS_ADDR 后运行
func testRedis(t *testing.T) *redis.Client {
	t.Helper()
	addr := os.Getenv("HISTAI_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("HISTAI_TEST_REDIS_ADDR not set")
	}
	rdb := redis.NewClient(&redis.Options{Addr: addr, DB: 15})
	if err := rdb.Ping(context.Background()).Err(); err != nil {
		t.Skipf("redis unavailable: %v", err)
	}
	t.Cleanup(func() {
		rdb.FlushDB(context.Background())
		rdb.Close()
	})
	return rdb
}

func TestRedisRepositories(t *testing.T) {
	rdb := testRedis(t)
	ctx := context.Background()

	counter := NewLimitCounter(rdb)
	for i := int64(1); i <= 3; i++ {
		n, ttl, err := counter.Hit(ctx, "ratelimit:ip:test", time.Hour)
		if err != nil || n != i || ttl <= 0 {
			t.Fatalf("Hit = %d %v %v", n, ttl, err)
		}
	}
	if n, _ := counter.Peek(ctx, "ratelimit:ip:test"); n != 3 {
		t.Fatalf("Peek = %d", n)
	}

	cache := NewCache(rdb)
	var out []string
	if ok, _ := cache.Get(ctx, "k", &out); ok {
		t.Fatal("unexpected hit")
	}
	_ = cache.Set(ctx, "k", []string{"a"}, time.Minute)
	if ok, err := cache.Get(ctx, "k", &out); !ok || err != nil || out[0] != "a" {
		t.Fatalf("Get = %v %v %v", ok, out, err)
	}

	tokens := NewAccessTokenStore(rdb)
	_ = tokens.Save(ctx, "tok", 7, time.Minute)
	if id, ok, err := tokens.Lookup(ctx, "tok"); !ok || id != 7 || err != nil {
		t.Fatalf("Lookup = %d %v %v", id, ok, err)
	}
}
