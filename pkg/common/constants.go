package common

const (
	RedisStreamPipelineCycle = "pipeline.cycle.completed"
)
