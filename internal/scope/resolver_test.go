package scope

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rentbot/internal/chunker"
	"rentbot/internal/domain"
	"rentbot/internal/embedding/hashing"
	"rentbot/internal/extract"
	"rentbot/internal/llm/extractive"
	"rentbot/internal/registry/sqlite"
	"rentbot/internal/service"
)

type fixture struct {
	ctx      context.Context
	store    *sqlite.Store
	resolver *Resolver
	landlord int64
	house    int64
	tenant   int64
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	dir := t.TempDir()
	store, err := sqlite.NewStore(filepath.Join(dir, "rentbot.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	svc := service.NewRAGService(chunker.NewWindowChunker(120, 20), hashing.New(hashing.DefaultDimension), extract.New(), extractive.New(1))
	r := NewResolver(svc, store, filepath.Join(dir, "house_kb"))
	r.now = func() time.Time { return time.Date(2024, 3, 1, 9, 30, 0, 0, time.UTC) }

	landlord, err := store.EnsureUser(ctx, "peter", domain.RoleLandlord, 0)
	require.NoError(t, err)
	house, err := store.CreateHouse(ctx, landlord, "Orchard", "88 Orchard Boulevard")
	require.NoError(t, err)
	tenant, err := store.EnsureUser(ctx, "alice", domain.RoleTenant, house)
	require.NoError(t, err)
	return &fixture{ctx: ctx, store: store, resolver: r, landlord: landlord, house: house, tenant: tenant}
}

func TestAddHouseDocument_StoresAndRegisters(t *testing.T) {
	f := newFixture(t)
	raw := []byte("The monthly rent is 7500 dollars.")

	reg, err := f.resolver.AddHouseDocument(f.ctx, f.house, "lease.txt", raw)
	require.NoError(t, err)
	assert.NotZero(t, reg.ID)
	assert.Equal(t, "20240301093000_lease.txt", filepath.Base(reg.StoragePath))
	assert.Equal(t, service.ContentHash(raw), reg.ContentHash)

	stored, err := os.ReadFile(reg.StoragePath)
	require.NoError(t, err)
	assert.Equal(t, raw, stored)

	regs, err := f.store.ListDocuments(f.ctx, f.house)
	require.NoError(t, err)
	require.Len(t, regs, 1)
	assert.Equal(t, reg.StoragePath, regs[0].StoragePath)

	// Not loaded yet, so nothing was indexed.
	assert.False(t, f.resolver.Loaded(f.house))
}

func TestAddHouseDocument_IdenticalContentIsStoredOnce(t *testing.T) {
	f := newFixture(t)
	raw := []byte("The monthly rent is 7500 dollars.")

	first, err := f.resolver.AddHouseDocument(f.ctx, f.house, "lease.txt", raw)
	require.NoError(t, err)
	f.resolver.now = func() time.Time { return time.Date(2024, 3, 1, 9, 30, 1, 0, time.UTC) }
	again, err := f.resolver.AddHouseDocument(f.ctx, f.house, "lease-copy.txt", raw)
	assert.ErrorIs(t, err, domain.ErrDuplicateDocument)
	assert.Equal(t, first.ID, again.ID)
	assert.Equal(t, first.StoragePath, again.StoragePath)

	regs, err := f.store.ListDocuments(f.ctx, f.house)
	require.NoError(t, err)
	assert.Len(t, regs, 1)
	entries, err := os.ReadDir(filepath.Dir(first.StoragePath))
	require.NoError(t, err)
	assert.Len(t, entries, 1)

	n, err := f.resolver.LoadHouse(f.ctx, f.house)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	_, err = f.resolver.AddHouseDocument(f.ctx, f.house, "lease.txt", raw)
	assert.ErrorIs(t, err, domain.ErrDuplicateDocument)
	scopes, err := f.resolver.Resolve(f.ctx, domain.Identity{UserID: f.tenant, Role: domain.RoleTenant, HouseID: f.house})
	require.NoError(t, err)
	require.Len(t, scopes, 1)
	assert.Equal(t, 1, scopes[0].Len())
}

func TestAddHouseDocument_SameSecondUploadsKeepBothFiles(t *testing.T) {
	f := newFixture(t)
	rent := []byte("The monthly rent is 7500 dollars.")
	pets := []byte("Pets are not allowed.")

	first, err := f.resolver.AddHouseDocument(f.ctx, f.house, "lease.txt", rent)
	require.NoError(t, err)
	second, err := f.resolver.AddHouseDocument(f.ctx, f.house, "lease.txt", pets)
	require.NoError(t, err)

	assert.Equal(t, "20240301093000_lease.txt", filepath.Base(first.StoragePath))
	assert.Equal(t, "20240301093000_lease-1.txt", filepath.Base(second.StoragePath))

	stored, err := os.ReadFile(first.StoragePath)
	require.NoError(t, err)
	assert.Equal(t, rent, stored)
	stored, err = os.ReadFile(second.StoragePath)
	require.NoError(t, err)
	assert.Equal(t, pets, stored)
}

func TestLoadHouse_SkipsRegisteredDuplicates(t *testing.T) {
	f := newFixture(t)
	raw := []byte("The monthly rent is 7500 dollars.")
	reg, err := f.resolver.AddHouseDocument(f.ctx, f.house, "lease.txt", raw)
	require.NoError(t, err)
	// A copy registered directly, as an older upload would have been.
	copyPath := filepath.Join(t.TempDir(), "copy.txt")
	require.NoError(t, os.WriteFile(copyPath, raw, 0o644))
	_, err = f.store.RegisterDocument(f.ctx, domain.Registration{HouseID: f.house, StoragePath: copyPath, ContentHash: reg.ContentHash})
	require.NoError(t, err)

	n, err := f.resolver.LoadHouse(f.ctx, f.house)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestLoadHouse_IsIdempotent(t *testing.T) {
	f := newFixture(t)
	_, err := f.resolver.AddHouseDocument(f.ctx, f.house, "lease.txt", []byte("The monthly rent is 7500 dollars."))
	require.NoError(t, err)
	_, err = f.resolver.AddHouseDocument(f.ctx, f.house, "rules.txt", []byte("Pets are not allowed in the apartment."))
	require.NoError(t, err)

	n, err := f.resolver.LoadHouse(f.ctx, f.house)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	again, err := f.resolver.LoadHouse(f.ctx, f.house)
	require.NoError(t, err)
	assert.Zero(t, again)

	scopes, err := f.resolver.Resolve(f.ctx, domain.Identity{UserID: f.tenant, Role: domain.RoleTenant, HouseID: f.house})
	require.NoError(t, err)
	require.Len(t, scopes, 1)
	assert.Equal(t, 2, scopes[0].Len())
	assert.Equal(t, HouseScopeID(f.house), scopes[0].ID)
}

func TestLoadHouse_SkipsBrokenDocuments(t *testing.T) {
	f := newFixture(t)
	_, err := f.store.RegisterDocument(f.ctx, domain.Registration{HouseID: f.house, StoragePath: filepath.Join(t.TempDir(), "missing.txt")})
	require.NoError(t, err)
	_, err = f.resolver.AddHouseDocument(f.ctx, f.house, "blank.txt", []byte("   "))
	require.NoError(t, err)
	_, err = f.resolver.AddHouseDocument(f.ctx, f.house, "lease.txt", []byte("The deposit is two months of rent."))
	require.NoError(t, err)

	n, err := f.resolver.LoadHouse(f.ctx, f.house)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.True(t, f.resolver.Loaded(f.house))
}

func TestAddHouseDocument_IndexesLoadedHouse(t *testing.T) {
	f := newFixture(t)
	_, err := f.resolver.LoadHouse(f.ctx, f.house)
	require.NoError(t, err)

	_, err = f.resolver.AddHouseDocument(f.ctx, f.house, "lease.txt", []byte("The monthly rent is 7500 dollars."))
	require.NoError(t, err)

	answer, err := f.resolver.Answer(f.ctx, domain.Identity{UserID: f.tenant, Role: domain.RoleTenant}, "What is the monthly rent?", 3)
	require.NoError(t, err)
	assert.Equal(t, "The monthly rent is 7500 dollars.", answer)
}

func TestUploadPersonal_ReplacesScope(t *testing.T) {
	f := newFixture(t)
	_, err := f.resolver.UploadPersonal(f.ctx, "first.txt", []byte("The garden must be kept tidy."))
	require.NoError(t, err)
	first := f.resolver.Personal()

	n, err := f.resolver.UploadPersonal(f.ctx, "second.txt", []byte("Rent is due on the first day of the month."))
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	second := f.resolver.Personal()
	assert.NotSame(t, first, second)
	assert.Equal(t, 1, second.Len())

	// An empty upload keeps the previous personal scope.
	_, err = f.resolver.UploadPersonal(f.ctx, "blank.txt", []byte(""))
	assert.ErrorIs(t, err, domain.ErrEmptyDocument)
	assert.Same(t, second, f.resolver.Personal())
}

func TestResolve(t *testing.T) {
	f := newFixture(t)
	other, err := f.store.CreateHouse(f.ctx, f.landlord, "Marina", "")
	require.NoError(t, err)
	_, err = f.resolver.AddHouseDocument(f.ctx, f.house, "lease.txt", []byte("The monthly rent is 7500 dollars."))
	require.NoError(t, err)

	landlord := domain.Identity{UserID: f.landlord, Role: domain.RoleLandlord}
	scopes, err := f.resolver.Resolve(f.ctx, landlord)
	require.NoError(t, err)
	require.Len(t, scopes, 2)
	ids := []string{scopes[0].ID, scopes[1].ID}
	assert.ElementsMatch(t, []string{HouseScopeID(f.house), HouseScopeID(other)}, ids)

	_, err = f.resolver.UploadPersonal(f.ctx, "notes.txt", []byte("Parking space number 12."))
	require.NoError(t, err)
	scopes, err = f.resolver.Resolve(f.ctx, domain.Identity{UserID: f.tenant, Role: domain.RoleTenant})
	require.NoError(t, err)
	require.Len(t, scopes, 2)
	assert.Equal(t, PersonalID, scopes[0].ID)
	assert.Equal(t, HouseScopeID(f.house), scopes[1].ID)

	unbound, err := f.store.EnsureUser(f.ctx, "bob", domain.RoleTenant, 0)
	require.NoError(t, err)
	scopes, err = f.resolver.Resolve(f.ctx, domain.Identity{UserID: unbound, Role: domain.RoleTenant})
	require.NoError(t, err)
	require.Len(t, scopes, 1)
	assert.Equal(t, PersonalID, scopes[0].ID)

	_, err = f.resolver.Resolve(f.ctx, domain.Identity{Role: "janitor"})
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestHasAnyKB(t *testing.T) {
	f := newFixture(t)
	tenant := domain.Identity{UserID: f.tenant, Role: domain.RoleTenant, HouseID: f.house}

	ok, err := f.resolver.HasAnyKB(f.ctx, tenant)
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = f.resolver.AddHouseDocument(f.ctx, f.house, "lease.txt", []byte("The monthly rent is 7500 dollars."))
	require.NoError(t, err)
	ok, err = f.resolver.HasAnyKB(f.ctx, tenant)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = f.resolver.HasAnyKB(f.ctx, domain.Identity{UserID: f.landlord, Role: domain.RoleLandlord})
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestAnswer_NotIndexed(t *testing.T) {
	f := newFixture(t)
	_, err := f.resolver.Answer(f.ctx, domain.Identity{UserID: f.tenant, Role: domain.RoleTenant}, "What is the rent?", 3)
	assert.ErrorIs(t, err, domain.ErrNotIndexed)
}

func TestHouseScopeID(t *testing.T) {
	assert.True(t, strings.HasPrefix(HouseScopeID(42), "house:"))
	assert.Equal(t, "house:42", HouseScopeID(42))
}
