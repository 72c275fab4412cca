package mocks

//go:generate mockery --name EventRepository --srcpkg github.com/aevon-lab/analytics/internal/core/storage --output ./storage --outpkg storagemocks --with-expecter
