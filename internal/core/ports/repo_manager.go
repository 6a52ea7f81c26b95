package ports

import "github.com/arkade-os/bvsnap/internal/core/domain"

type RepoManager interface {
	Objects() domain.ObjectRepository
	Close()
}
