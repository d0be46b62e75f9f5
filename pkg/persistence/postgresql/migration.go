package postgresql

func migrations() map[int]string {
	return map[int]string{
		1: `
			-- Create chains table
			CREATE TABLE chains (
				id VARCHAR(255) PRIMARY KEY,
				name VARCHAR(255) NOT NULL,
				description TEXT NOT NULL DEFAULT '',
				steps JSONB NOT NULL,
				owner VARCHAR(255),
				created_at TIMESTAMP WITH TIME ZONE NOT NULL,
				updated_at TIMESTAMP WITH TIME ZONE NOT NULL
			);

			CREATE INDEX idx_chains_owner ON chains(owner);
			CREATE INDEX idx_chains_created_at ON chains(created_at);

			-- Create runs table
			CREATE TABLE runs (
				id VARCHAR(255) PRIMARY KEY,
				chain_id VARCHAR(255) NOT NULL,
				user_id VARCHAR(255) NOT NULL,
				inputs JSONB,
				status VARCHAR(50) NOT NULL CHECK (status IN ('running', 'completed', 'failed')),
				failed_step_id VARCHAR(255),
				error_message TEXT,
				started_at TIMESTAMP WITH TIME ZONE NOT NULL,
				completed_at TIMESTAMP WITH TIME ZONE
			);

			CREATE INDEX idx_runs_chain_id ON runs(chain_id);
			CREATE INDEX idx_runs_user_id ON runs(user_id);
			CREATE INDEX idx_runs_status ON runs(status);
			CREATE INDEX idx_runs_started_at ON runs(started_at);

			-- Create step_results table
			CREATE TABLE step_results (
				id VARCHAR(255) PRIMARY KEY,
				run_id VARCHAR(255) NOT NULL REFERENCES runs(id),
				step_id VARCHAR(255) NOT NULL,
				resolved_input TEXT NOT NULL DEFAULT '',
				output TEXT NOT NULL DEFAULT '',
				status VARCHAR(50) NOT NULL CHECK (status IN ('completed', 'failed')),
				error_message TEXT,
				started_at TIMESTAMP WITH TIME ZONE NOT NULL,
				completed_at TIMESTAMP WITH TIME ZONE NOT NULL,
				duration_ms BIGINT NOT NULL DEFAULT 0
			);

			CREATE INDEX idx_step_results_run_id ON step_results(run_id);
			CREATE INDEX idx_step_results_step_id ON step_results(step_id);
		`,
	}
}
