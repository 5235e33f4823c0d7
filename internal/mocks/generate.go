package mocks

//go:generate mockgen -destination=mock_broadcaster.go -package=mocks github.com/relab/flooding/consensus Broadcaster
