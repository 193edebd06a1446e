package postgresql

// migrations returns the schema migrations keyed by version.
func migrations() map[int]string {
	return map[int]string{
		1: `
			CREATE TABLE IF NOT EXISTS graphs (
				id VARCHAR(255) PRIMARY KEY,
				name VARCHAR(255) NOT NULL,
				description TEXT,
				status VARCHAR(50) NOT NULL DEFAULT 'draft',
				nodes JSONB NOT NULL DEFAULT '[]',
				edges JSONB NOT NULL DEFAULT '[]',
				variables JSONB,
				metadata JSONB,
				owner VARCHAR(255),
				created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
				updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
				published_at TIMESTAMP WITH TIME ZONE,
				deleted_at TIMESTAMP WITH TIME ZONE
			);

			CREATE INDEX IF NOT EXISTS idx_graphs_owner ON graphs(owner) WHERE deleted_at IS NULL;
			CREATE INDEX IF NOT EXISTS idx_graphs_status ON graphs(status) WHERE deleted_at IS NULL;
		`,
		2: `
			CREATE TABLE IF NOT EXISTS executions (
				id VARCHAR(255) PRIMARY KEY,
				graph_id VARCHAR(255) NOT NULL,
				status VARCHAR(50) NOT NULL DEFAULT 'pending',
				target_nodes JSONB,
				debug BOOLEAN NOT NULL DEFAULT FALSE,
				node_results JSONB NOT NULL DEFAULT '{}',
				jobs JSONB NOT NULL DEFAULT '{}',
				last_failed_node_id VARCHAR(255),
				error_message TEXT,
				variables JSONB,
				metadata JSONB,
				created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
				started_at TIMESTAMP WITH TIME ZONE,
				completed_at TIMESTAMP WITH TIME ZONE
			);

			CREATE INDEX IF NOT EXISTS idx_executions_graph_id ON executions(graph_id);
			CREATE INDEX IF NOT EXISTS idx_executions_status ON executions(status);
		`,
	}
}
