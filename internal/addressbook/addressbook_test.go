package addressbook

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/medcare-vn/medcare-mobile/internal/api"
	"github.com/medcare-vn/medcare-mobile/pkg/logging"
)

const hcm = "Thành phố Hồ Chí Minh"

type fakeClient struct {
	addresses []api.Address
	created   []string
	updated   []api.Address
	deleted   []int64
}

func (f *fakeClient) ListAddresses(context.Context) ([]api.Address, error) {
	return f.addresses, nil
}

func (f *fakeClient) GetAddress(_ context.Context, id int64) (*api.Address, error) {
	for _, a := range f.addresses {
		if a.ID == id {
			a := a
			return &a, nil
		}
	}
	return nil, api.ErrNotFound
}

func (f *fakeClient) CreateAddress(_ context.Context, text string) error {
	f.created = append(f.created, text)
	return nil
}

func (f *fakeClient) UpdateAddress(_ context.Context, addr api.Address) error {
	f.updated = append(f.updated, addr)
	return nil
}

func (f *fakeClient) DeleteAddress(_ context.Context, id int64) error {
	f.deleted = append(f.deleted, id)
	return nil
}

func TestCompose(t *testing.T) {
	got, err := Compose(" 12 Nguyễn Trãi ", "Phường Bến Thành", "Quận 1", hcm)
	require.NoError(t, err)
	assert.Equal(t, "12 Nguyễn Trãi, Phường Bến Thành, Quận 1, Thành phố Hồ Chí Minh", got)

	_, err = Compose("12 Nguyễn Trãi", "", "Quận 1", hcm)
	assert.ErrorIs(t, err, ErrInvalidAddress)
}

func TestHomeVisitEligible(t *testing.T) {
	assert.True(t, HomeVisitEligible("1 Lê Lợi, Quận 1, Thành phố Hồ Chí Minh", hcm))
	assert.False(t, HomeVisitEligible("1 Tràng Tiền, Hoàn Kiếm, Thành phố Hà Nội", hcm))
	assert.False(t, HomeVisitEligible("anything", ""))
}

func TestBook_ForHomeVisitAndDefault(t *testing.T) {
	fake := &fakeClient{addresses: []api.Address{
		{ID: 1, Text: "1 Tràng Tiền, Hoàn Kiếm, Thành phố Hà Nội"},
		{ID: 2, Text: "5 Pasteur, Quận 3, Thành phố Hồ Chí Minh", IsDefault: true},
	}}
	book := NewBook(fake, hcm, logging.Discard())
	ctx := context.Background()

	eligible, err := book.ForHomeVisit(ctx)
	require.NoError(t, err)
	require.Len(t, eligible, 1)
	assert.Equal(t, int64(2), eligible[0].ID)

	def, err := book.Default(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), def.ID)

	fake.addresses[1].IsDefault = false
	def, err = book.Default(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), def.ID)

	fake.addresses = nil
	_, err = book.Default(ctx)
	assert.ErrorIs(t, err, ErrNoAddress)
}

func TestBook_CreateUpdateDelete(t *testing.T) {
	fake := &fakeClient{addresses: []api.Address{{ID: 7, Text: "old", IsDefault: true}}}
	book := NewBook(fake, hcm, logging.Discard())
	ctx := context.Background()

	text, err := book.Create(ctx, "9 Hai Bà Trưng", "Phường Đa Kao", "Quận 1", hcm)
	require.NoError(t, err)
	assert.Equal(t, []string{text}, fake.created)

	_, err = book.Create(ctx, "", "Phường Đa Kao", "Quận 1", hcm)
	assert.ErrorIs(t, err, ErrInvalidAddress)
	assert.Len(t, fake.created, 1)

	require.NoError(t, book.Update(ctx, 7, "3 Lý Tự Trọng", "Phường Bến Nghé", "Quận 1", hcm))
	require.Len(t, fake.updated, 1)
	assert.Equal(t, "3 Lý Tự Trọng, Phường Bến Nghé, Quận 1, Thành phố Hồ Chí Minh", fake.updated[0].Text)
	assert.True(t, fake.updated[0].IsDefault)

	err = book.Update(ctx, 99, "a", "b", "c", "d")
	assert.ErrorIs(t, err, api.ErrNotFound)

	require.NoError(t, book.Delete(ctx, 7))
	assert.Equal(t, []int64{7}, fake.deleted)
}
